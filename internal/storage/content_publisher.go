package storage

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"mime"
	"path"
	"sync"

	"github.com/google/uuid"
	"github.com/tendant/simple-content/pkg/simplecontent"
)

// DerivationTypeImageVariant tags variants mirrored into simple-content
const DerivationTypeImageVariant = "image_variant"

// ContentPublisher mirrors generated variants into a simple-content service.
// Each version of a source image is uploaded once as parent content; variants
// become derived content named "<size>_<format>". Editing a source yields a
// new parent, so its variants are mirrored again.
type ContentPublisher struct {
	service  simplecontent.Service
	sources  Reader
	ownerID  uuid.UUID
	tenantID uuid.UUID

	mu      sync.Mutex
	parents map[string]parent
}

type parent struct {
	sum [sha256.Size]byte
	id  uuid.UUID
}

// NewContentPublisher creates a publisher. sources is used to read the
// original image the first time a source is published.
func NewContentPublisher(service simplecontent.Service, sources Reader, ownerID, tenantID uuid.UUID) *ContentPublisher {
	return &ContentPublisher{
		service:  service,
		sources:  sources,
		ownerID:  ownerID,
		tenantID: tenantID,
		parents:  make(map[string]parent),
	}
}

// PublishVariant uploads one variant of source. Variants already present for
// the parent are skipped.
func (p *ContentPublisher) PublishVariant(ctx context.Context, source, size, format string, data []byte) error {
	parentID, err := p.parentFor(ctx, source)
	if err != nil {
		return err
	}

	variant := fmt.Sprintf("%s_%s", size, format)

	exists, err := p.hasVariant(ctx, parentID, variant)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	base := path.Base(source)
	fileName := fmt.Sprintf("%s-%s.%s", base[:len(base)-len(path.Ext(base))], size, format)

	_, err = p.service.UploadDerivedContent(ctx, simplecontent.UploadDerivedContentRequest{
		ParentID:       parentID,
		DerivationType: DerivationTypeImageVariant,
		Variant:        variant,
		Reader:         bytes.NewReader(data),
		FileName:       fileName,
		Tags:           []string{DerivationTypeImageVariant, size, format},
	})
	if err != nil {
		return fmt.Errorf("failed to upload derived content: %w", err)
	}

	return nil
}

// parentFor returns the content ID for the current bytes of source,
// uploading them when they were not seen before
func (p *ContentPublisher) parentFor(ctx context.Context, source string) (uuid.UUID, error) {
	r, err := p.sources.GetReader(ctx, source)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to open source %s: %w", source, err)
	}
	data, err := io.ReadAll(r)
	r.Close()
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to read source %s: %w", source, err)
	}
	sum := sha256.Sum256(data)

	p.mu.Lock()
	defer p.mu.Unlock()

	if cached, ok := p.parents[source]; ok && cached.sum == sum {
		return cached.id, nil
	}

	content, err := p.service.UploadContent(ctx, simplecontent.UploadContentRequest{
		OwnerID:      p.ownerID,
		TenantID:     p.tenantID,
		Name:         source,
		DocumentType: mime.TypeByExtension(path.Ext(source)),
		Reader:       bytes.NewReader(data),
		FileName:     path.Base(source),
		Tags:         []string{"source_image"},
	})
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to upload source content: %w", err)
	}

	p.parents[source] = parent{sum: sum, id: content.ID}
	return content.ID, nil
}

// hasVariant checks if a derived variant already exists for the parent
func (p *ContentPublisher) hasVariant(ctx context.Context, parentID uuid.UUID, variant string) (bool, error) {
	derived, err := p.service.ListDerivedContent(ctx,
		simplecontent.WithParentID(parentID),
		simplecontent.WithDerivationType(DerivationTypeImageVariant),
	)
	if err != nil {
		return false, fmt.Errorf("failed to list derived content: %w", err)
	}

	for _, d := range derived {
		if d.Variant == variant {
			return true, nil
		}
	}

	return false, nil
}
