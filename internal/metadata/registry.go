// Package metadata keeps per-scope metadata next to the annotations: the
// registry of field names ever written and the version-tag registry that
// maps release tags to repository uuids.
//
// One document per dataset lives in "annotations_metadata/<kind>". Reads go
// through a TTL cache owned by the Registry, so metadata published by
// another process becomes visible within one TTL.
package metadata

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/roach88/annostore/internal/annotations"
	"github.com/roach88/annostore/internal/docstore"
	"github.com/roach88/annostore/internal/record"
)

// DefaultTTL is how long cached metadata stays fresh.
const DefaultTTL = 120 * time.Second

// DefaultCacheSize bounds the number of cached scopes.
const DefaultCacheSize = 256

// CollectionPrefix is the first path segment of metadata collections.
const CollectionPrefix = "annotations_metadata"

// Stored field names.
const (
	fieldFields    = "fields"
	fieldHeadTag   = "head_tag"
	fieldHeadUUID  = "head_uuid"
	fieldTagToUUID = "tag_to_uuid"
	fieldUUIDToTag = "uuid_to_tag"
)

// Metadata is the metadata document of one scope.
type Metadata struct {
	Fields    []string
	HeadTag   string
	HeadUUID  string
	TagToUUID map[string]string
	UUIDToTag map[string]string
}

// Versions is the input to PublishVersions.
type Versions struct {
	HeadTag   string            `json:"head_tag" validate:"required"`
	HeadUUID  string            `json:"head_uuid" validate:"required"`
	TagToUUID map[string]string `json:"tag_to_uuid" validate:"required,min=1"`
}

// Registry reads and updates scope metadata.
//
// Thread-safety: safe for concurrent use.
type Registry struct {
	store  docstore.Store
	cache  *expirable.LRU[annotations.Scope, Metadata]
	logger *slog.Logger
}

var _ annotations.FieldRecorder = (*Registry)(nil)

type options struct {
	ttl    time.Duration
	size   int
	logger *slog.Logger
}

// Option configures a Registry.
type Option func(*options)

// WithTTL sets the cache lifetime.
func WithTTL(ttl time.Duration) Option {
	return func(o *options) { o.ttl = ttl }
}

// WithCacheSize sets the maximum number of cached scopes.
func WithCacheSize(n int) Option {
	return func(o *options) { o.size = n }
}

// WithLogger sets the registry logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// NewRegistry creates a Registry over store.
func NewRegistry(store docstore.Store, opts ...Option) *Registry {
	o := options{ttl: DefaultTTL, size: DefaultCacheSize, logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	return &Registry{
		store:  store,
		cache:  expirable.NewLRU[annotations.Scope, Metadata](o.size, nil, o.ttl),
		logger: o.logger,
	}
}

// collection returns "annotations_metadata/<kind>".
func collection(scope annotations.Scope) string {
	return CollectionPrefix + "/" + scope.Kind
}

// Get returns a copy of the metadata of scope. A scope without metadata
// yields a zero Metadata and no error.
func (r *Registry) Get(ctx context.Context, scope annotations.Scope) (Metadata, error) {
	if md, ok := r.cache.Get(scope); ok {
		return md.clone(), nil
	}
	doc, err := r.store.Get(ctx, collection(scope), scope.Dataset)
	if errors.Is(err, docstore.ErrNotFound) {
		return Metadata{}, nil
	}
	if err != nil {
		return Metadata{}, &annotations.Error{Code: annotations.CodeStorage, Op: "metadata", Message: "read " + scope.String(), Err: err}
	}
	md := decode(doc)
	r.cache.Add(scope, md)
	return md.clone(), nil
}

func (md Metadata) clone() Metadata {
	md.Fields = slices.Clone(md.Fields)
	md.TagToUUID = maps.Clone(md.TagToUUID)
	md.UUIDToTag = maps.Clone(md.UUIDToTag)
	return md
}

// Fields returns the sorted field names written in scope.
func (r *Registry) Fields(ctx context.Context, scope annotations.Scope) ([]string, error) {
	md, err := r.Get(ctx, scope)
	if err != nil {
		return nil, err
	}
	if len(md.Fields) == 0 {
		return nil, notFound(scope, "fields")
	}
	return md.Fields, nil
}

// Versions returns the tag to uuid map of scope.
func (r *Registry) Versions(ctx context.Context, scope annotations.Scope) (map[string]string, error) {
	md, err := r.Get(ctx, scope)
	if err != nil {
		return nil, err
	}
	if len(md.TagToUUID) == 0 {
		return nil, notFound(scope, "tag_to_uuid")
	}
	return md.TagToUUID, nil
}

// HeadTag returns the tag of the head version.
func (r *Registry) HeadTag(ctx context.Context, scope annotations.Scope) (string, error) {
	md, err := r.Get(ctx, scope)
	if err != nil {
		return "", err
	}
	if md.HeadTag == "" {
		return "", notFound(scope, "head_tag")
	}
	return md.HeadTag, nil
}

// HeadUUID returns the uuid of the head version.
func (r *Registry) HeadUUID(ctx context.Context, scope annotations.Scope) (string, error) {
	md, err := r.Get(ctx, scope)
	if err != nil {
		return "", err
	}
	if md.HeadUUID == "" {
		return "", notFound(scope, "head_uuid")
	}
	return md.HeadUUID, nil
}

// TagToUUID returns the uuid published for tag.
func (r *Registry) TagToUUID(ctx context.Context, scope annotations.Scope, tag string) (string, error) {
	versions, err := r.Versions(ctx, scope)
	if err != nil {
		return "", err
	}
	uuid, ok := versions[tag]
	if !ok {
		return "", notFound(scope, "tag "+tag)
	}
	return uuid, nil
}

// UUIDToTag returns the tag of a uuid. Either side may be an abbreviation
// of the other: "74ea" finds "74ea83" and "74ea83f0" finds "74ea83". A
// uuid matching more than one entry is ambiguous.
func (r *Registry) UUIDToTag(ctx context.Context, scope annotations.Scope, uuid string) (string, error) {
	md, err := r.Get(ctx, scope)
	if err != nil {
		return "", err
	}
	if len(md.UUIDToTag) == 0 {
		return "", notFound(scope, "uuid_to_tag")
	}
	if uuid == "" {
		return "", &annotations.Error{Code: annotations.CodeInvalidRequest, Op: "metadata", Message: "empty uuid"}
	}

	var hits []string
	for stored, tag := range md.UUIDToTag {
		if strings.HasPrefix(stored, uuid) || strings.HasPrefix(uuid, stored) {
			hits = append(hits, tag)
		}
	}
	switch len(hits) {
	case 0:
		return "", notFound(scope, "uuid "+uuid)
	case 1:
		return hits[0], nil
	default:
		return "", &annotations.Error{
			Code:    annotations.CodeInvalidRequest,
			Op:      "metadata",
			Message: fmt.Sprintf("uuid %s is ambiguous in %s (%d matches)", uuid, scope, len(hits)),
		}
	}
}

// RecordFields adds field names to the scope's field registry. It is a
// no-op when the cached registry already lists every field.
func (r *Registry) RecordFields(ctx context.Context, scope annotations.Scope, fields []string) error {
	if md, ok := r.cache.Get(scope); ok && containsAll(md.Fields, fields) {
		return nil
	}

	var updated Metadata
	err := r.store.Transact(ctx, func(tx docstore.Tx) error {
		doc, err := tx.Get(collection(scope), scope.Dataset)
		if errors.Is(err, docstore.ErrNotFound) {
			doc = record.Record{}
		} else if err != nil {
			return err
		}
		md := decode(doc)
		md.Fields = union(md.Fields, fields)
		updated = md
		return tx.Set(collection(scope), scope.Dataset, encode(md))
	})
	if err != nil {
		return fmt.Errorf("record fields for %s: %w", scope, err)
	}

	r.cache.Add(scope, updated)
	r.logger.Debug("field registry updated", "scope", scope.String(), "fields", len(updated.Fields))
	return nil
}

// PublishVersions replaces the version-tag registry of scope. The reverse
// uuid to tag map is derived from v.TagToUUID.
func (r *Registry) PublishVersions(ctx context.Context, scope annotations.Scope, v Versions) error {
	if v.HeadTag == "" || v.HeadUUID == "" || len(v.TagToUUID) == 0 {
		return &annotations.Error{Code: annotations.CodeInvalidRequest, Op: "metadata", Message: "head_tag, head_uuid and tag_to_uuid are required"}
	}
	if uuid, ok := v.TagToUUID[v.HeadTag]; ok && uuid != v.HeadUUID {
		return &annotations.Error{
			Code:    annotations.CodeInvalidRequest,
			Op:      "metadata",
			Message: fmt.Sprintf("head_tag %s maps to %s, not head_uuid %s", v.HeadTag, uuid, v.HeadUUID),
		}
	}

	var updated Metadata
	err := r.store.Transact(ctx, func(tx docstore.Tx) error {
		doc, err := tx.Get(collection(scope), scope.Dataset)
		if errors.Is(err, docstore.ErrNotFound) {
			doc = record.Record{}
		} else if err != nil {
			return err
		}
		md := decode(doc)
		md.HeadTag = v.HeadTag
		md.HeadUUID = v.HeadUUID
		md.TagToUUID = make(map[string]string, len(v.TagToUUID))
		md.UUIDToTag = make(map[string]string, len(v.TagToUUID))
		for tag, uuid := range v.TagToUUID {
			md.TagToUUID[tag] = uuid
			md.UUIDToTag[uuid] = tag
		}
		updated = md
		return tx.Set(collection(scope), scope.Dataset, encode(md))
	})
	if err != nil {
		return &annotations.Error{Code: annotations.CodeStorage, Op: "metadata", Message: "publish versions for " + scope.String(), Err: err}
	}

	r.cache.Add(scope, updated)
	r.logger.Info("versions published", "scope", scope.String(), "head_tag", v.HeadTag, "tags", len(v.TagToUUID))
	return nil
}

// Invalidate drops the cached metadata of scope.
func (r *Registry) Invalidate(scope annotations.Scope) {
	r.cache.Remove(scope)
}

func notFound(scope annotations.Scope, what string) error {
	return &annotations.Error{
		Code:    annotations.CodeNotFound,
		Op:      "metadata",
		Message: fmt.Sprintf("no %s for %s", what, scope),
	}
}

func decode(doc record.Record) Metadata {
	md := Metadata{
		TagToUUID: stringMap(doc[fieldTagToUUID]),
		UUIDToTag: stringMap(doc[fieldUUIDToTag]),
	}
	md.HeadTag, _ = doc[fieldHeadTag].(string)
	md.HeadUUID, _ = doc[fieldHeadUUID].(string)
	if list, ok := doc[fieldFields].([]any); ok {
		for _, v := range list {
			if s, ok := v.(string); ok {
				md.Fields = append(md.Fields, s)
			}
		}
	}
	return md
}

func encode(md Metadata) record.Record {
	fields := make([]any, len(md.Fields))
	for i, f := range md.Fields {
		fields[i] = f
	}
	doc := record.Record{fieldFields: fields}
	if md.HeadTag != "" {
		doc[fieldHeadTag] = md.HeadTag
	}
	if md.HeadUUID != "" {
		doc[fieldHeadUUID] = md.HeadUUID
	}
	if md.TagToUUID != nil {
		doc[fieldTagToUUID] = anyMap(md.TagToUUID)
	}
	if md.UUIDToTag != nil {
		doc[fieldUUIDToTag] = anyMap(md.UUIDToTag)
	}
	return doc
}

func stringMap(v any) map[string]string {
	m, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, val := range m {
		if s, ok := val.(string); ok {
			out[k] = s
		}
	}
	return out
}

func anyMap(m map[string]string) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func containsAll(have, want []string) bool {
	set := make(map[string]bool, len(have))
	for _, f := range have {
		set[f] = true
	}
	for _, f := range want {
		if !set[f] {
			return false
		}
	}
	return true
}

// union merges field lists into one sorted, duplicate-free list.
func union(a, b []string) []string {
	set := make(map[string]bool, len(a)+len(b))
	for _, f := range a {
		set[f] = true
	}
	for _, f := range b {
		set[f] = true
	}
	out := make([]string, 0, len(set))
	for f := range set {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}
