package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
)

// Document is a decoded Firestore document with metadata timestamps.
type Document[T any] struct {
	ID         string
	Data       T
	CreateTime time.Time
	UpdateTime time.Time
}

// Encoder serialises the strongly typed entity prior to persistence.
type Encoder[T any] func(value T) (any, error)

// Decoder hydrates the strongly typed entity from a snapshot.
type Decoder[T any] func(snap *firestore.DocumentSnapshot) (T, error)

// QueryBuilder customises Firestore queries before execution.
type QueryBuilder func(query firestore.Query) firestore.Query

// BaseRepository provides typed helpers over one collection. Tenant-scoped repositories resolve
// the collection under tenants/{tenantID}; root repositories ignore the tenant id.
type BaseRepository[T any] struct {
	provider   *Provider
	collection string
	scoped     bool
	encode     Encoder[T]
	decode     Decoder[T]
}

// NewBaseRepository binds a repository to a root collection.
func NewBaseRepository[T any](provider *Provider, collection string, encode Encoder[T], decode Decoder[T]) *BaseRepository[T] {
	return newRepository(provider, collection, false, encode, decode)
}

// NewTenantRepository binds a repository to a per-tenant sub-collection.
func NewTenantRepository[T any](provider *Provider, collection string, encode Encoder[T], decode Decoder[T]) *BaseRepository[T] {
	return newRepository(provider, collection, true, encode, decode)
}

func newRepository[T any](provider *Provider, collection string, scoped bool, encode Encoder[T], decode Decoder[T]) *BaseRepository[T] {
	if encode == nil {
		encode = IdentityEncoder[T]()
	}
	if decode == nil {
		decode = StructDecoder[T]()
	}
	return &BaseRepository[T]{
		provider:   provider,
		collection: strings.TrimSpace(collection),
		scoped:     scoped,
		encode:     encode,
		decode:     decode,
	}
}

// Encode exposes the configured encoder for transactional writes.
func (r *BaseRepository[T]) Encode(value T) (any, error) {
	return r.encode(value)
}

// Create inserts a new document and fails with a conflict when the id is taken.
func (r *BaseRepository[T]) Create(ctx context.Context, tenantID, id string, value T) error {
	doc, err := r.DocumentRef(ctx, tenantID, id)
	if err != nil {
		return err
	}
	payload, err := r.encode(value)
	if err != nil {
		return fmt.Errorf("firestore: encode document %s: %w", id, err)
	}
	ctx, cancel := r.provider.WithTimeout(ctx)
	defer cancel()
	if _, err := doc.Create(ctx, payload); err != nil {
		return WrapError(r.op("create"), err)
	}
	return nil
}

// Set upserts the given value under the provided document ID.
func (r *BaseRepository[T]) Set(ctx context.Context, tenantID, id string, value T, opts ...firestore.SetOption) error {
	doc, err := r.DocumentRef(ctx, tenantID, id)
	if err != nil {
		return err
	}
	payload, err := r.encode(value)
	if err != nil {
		return fmt.Errorf("firestore: encode document %s: %w", id, err)
	}
	ctx, cancel := r.provider.WithTimeout(ctx)
	defer cancel()
	if _, err := doc.Set(ctx, payload, opts...); err != nil {
		return WrapError(r.op("set"), err)
	}
	return nil
}

// Update applies partial updates to an existing document.
func (r *BaseRepository[T]) Update(ctx context.Context, tenantID, id string, updates []firestore.Update, preconds ...firestore.Precondition) error {
	doc, err := r.DocumentRef(ctx, tenantID, id)
	if err != nil {
		return err
	}
	ctx, cancel := r.provider.WithTimeout(ctx)
	defer cancel()
	if _, err := doc.Update(ctx, updates, preconds...); err != nil {
		return WrapError(r.op("update"), err)
	}
	return nil
}

// Get fetches the document by ID and decodes it.
func (r *BaseRepository[T]) Get(ctx context.Context, tenantID, id string) (Document[T], error) {
	doc, err := r.DocumentRef(ctx, tenantID, id)
	if err != nil {
		return Document[T]{}, err
	}
	ctx, cancel := r.provider.WithTimeout(ctx)
	defer cancel()
	snapshot, err := doc.Get(ctx)
	if err != nil {
		return Document[T]{}, WrapError(r.op("get"), err)
	}
	return r.Decode(snapshot)
}

// Query executes a collection query and returns the decoded documents.
func (r *BaseRepository[T]) Query(ctx context.Context, tenantID string, build QueryBuilder) ([]Document[T], error) {
	coll, err := r.CollectionRef(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	query := coll.Query
	if build != nil {
		query = build(query)
	}

	ctx, cancel := r.provider.WithTimeout(ctx)
	defer cancel()
	iter := query.Documents(ctx)
	defer iter.Stop()

	var docs []Document[T]
	for {
		snapshot, err := iter.Next()
		if isIteratorDone(err) {
			break
		}
		if err != nil {
			return nil, WrapError(r.op("query"), err)
		}
		decoded, err := r.Decode(snapshot)
		if err != nil {
			return nil, err
		}
		docs = append(docs, decoded)
	}
	return docs, nil
}

// Decode hydrates a snapshot read elsewhere, typically inside a transaction.
func (r *BaseRepository[T]) Decode(snapshot *firestore.DocumentSnapshot) (Document[T], error) {
	entity, err := r.decode(snapshot)
	if err != nil {
		return Document[T]{}, fmt.Errorf("firestore: decode document %s: %w", snapshot.Ref.ID, err)
	}
	return Document[T]{
		ID:         snapshot.Ref.ID,
		Data:       entity,
		CreateTime: snapshot.CreateTime,
		UpdateTime: snapshot.UpdateTime,
	}, nil
}

// CollectionRef resolves the collection for tenantID.
func (r *BaseRepository[T]) CollectionRef(ctx context.Context, tenantID string) (*firestore.CollectionRef, error) {
	if r == nil || r.provider == nil {
		return nil, WrapError("firestore.collection", errors.New("firestore: provider is nil"))
	}
	if r.collection == "" {
		return nil, WrapError(r.op("collection"), errors.New("firestore: collection name is required"))
	}
	if r.scoped {
		return r.provider.TenantCollection(ctx, tenantID, r.collection)
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	return client.Collection(r.collection), nil
}

// DocumentRef resolves the document reference, e.g. for use in transactions.
func (r *BaseRepository[T]) DocumentRef(ctx context.Context, tenantID, id string) (*firestore.DocumentRef, error) {
	if strings.TrimSpace(id) == "" {
		return nil, WrapError(r.op("document"), errors.New("firestore: document id is required"))
	}
	coll, err := r.CollectionRef(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return coll.Doc(id), nil
}

func (r *BaseRepository[T]) op(action string) string {
	name := "firestore"
	if r != nil && r.collection != "" {
		name = r.collection
	}
	return fmt.Sprintf("%s.%s", name, strings.ToLower(action))
}

// IdentityEncoder returns an encoder that writes the value unchanged.
func IdentityEncoder[T any]() Encoder[T] {
	return func(value T) (any, error) {
		return value, nil
	}
}

// StructDecoder populates the target struct using Firestore's native decoding.
func StructDecoder[T any]() Decoder[T] {
	return func(snap *firestore.DocumentSnapshot) (T, error) {
		var target T
		err := snap.DataTo(&target)
		return target, err
	}
}

func isIteratorDone(err error) bool {
	return errors.Is(err, iterator.Done)
}
