package vectorstore

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
)

// QdrantConfig holds connection settings for a Qdrant instance.
type QdrantConfig struct {
	Host             string `json:"host"`
	Port             int    `json:"port"`
	CollectionPrefix string `json:"collection_prefix"`
	Dimension        int    `json:"dimension"`
}

// idKey is the payload field holding the caller's point id. Qdrant only
// accepts UUID or integer ids, so the stored id is derived from it.
const idKey = "_mana_id"

// pointNamespace seeds the name-based UUIDs derived from caller ids.
var pointNamespace = uuid.MustParse("5b7c1f0e-3d0a-4e55-9a8e-6d1f3c2b9a41")

// Qdrant implements Store with one Qdrant collection per namespace.
type Qdrant struct {
	conn        *grpc.ClientConn
	collections pb.CollectionsClient
	points      pb.PointsClient
	prefix      string
	dimension   uint64
	logger      *zap.Logger

	mu      sync.Mutex
	ensured map[string]bool
}

// NewQdrant dials the Qdrant gRPC endpoint and returns a ready store.
func NewQdrant(cfg QdrantConfig, logger *zap.Logger) (*Qdrant, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("qdrant connect %s: %w", addr, err)
	}
	return &Qdrant{
		conn:        conn,
		collections: pb.NewCollectionsClient(conn),
		points:      pb.NewPointsClient(conn),
		prefix:      cfg.CollectionPrefix,
		dimension:   uint64(cfg.Dimension),
		logger:      logger,
		ensured:     make(map[string]bool),
	}, nil
}

// PointUUID maps a caller id onto the UUID stored in Qdrant.
func PointUUID(id string) string {
	return uuid.NewSHA1(pointNamespace, []byte(id)).String()
}

func (q *Qdrant) collection(namespace string) string {
	return q.prefix + namespace
}

// ensureCollection creates the collection backing namespace if it does not exist.
func (q *Qdrant) ensureCollection(ctx context.Context, namespace string) error {
	name := q.collection(namespace)
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.ensured[name] {
		return nil
	}
	if _, err := q.collections.Get(ctx, &pb.GetCollectionInfoRequest{CollectionName: name}); err == nil {
		q.ensured[name] = true
		return nil
	}
	_, err := q.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: name,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     q.dimension,
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("create collection %s: %w", name, err)
	}
	q.logger.Info("created qdrant collection", zap.String("collection", name), zap.Uint64("dimension", q.dimension))
	q.ensured[name] = true
	return nil
}

func (q *Qdrant) Upsert(ctx context.Context, namespace string, points []Point) error {
	if len(points) == 0 {
		return nil
	}
	if err := q.ensureCollection(ctx, namespace); err != nil {
		return err
	}
	structs := make([]*pb.PointStruct, 0, len(points))
	for _, p := range points {
		if q.dimension > 0 && uint64(len(p.Vector)) != q.dimension {
			return fmt.Errorf("upsert %s/%s: %w: got %d, want %d", namespace, p.ID, ErrDimensionMismatch, len(p.Vector), q.dimension)
		}
		structs = append(structs, toPointStruct(p))
	}
	wait := true
	_, err := q.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: q.collection(namespace),
		Wait:           &wait,
		Points:         structs,
	})
	if err != nil {
		return fmt.Errorf("upsert %s: %w", namespace, err)
	}
	return nil
}

func (q *Qdrant) Query(ctx context.Context, namespace string, vector []float32, opts QueryOptions) ([]Match, error) {
	req := &pb.SearchPoints{
		CollectionName: q.collection(namespace),
		Vector:         vector,
		Limit:          uint64(opts.TopK),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	}
	if opts.Offset > 0 {
		offset := uint64(opts.Offset)
		req.Offset = &offset
	}
	resp, err := q.points.Search(ctx, req)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("search %s: %w", namespace, err)
	}
	matches := make([]Match, 0, len(resp.Result))
	for _, r := range resp.Result {
		id, md := fromPayload(r.Payload, r.Id)
		m := Match{ID: id, Score: r.Score}
		if opts.IncludeMetadata {
			m.Metadata = md
		}
		matches = append(matches, m)
	}
	return matches, nil
}

func (q *Qdrant) Fetch(ctx context.Context, namespace string, ids []string) (map[string]Point, error) {
	if len(ids) == 0 {
		return map[string]Point{}, nil
	}
	resp, err := q.points.Get(ctx, &pb.GetPoints{
		CollectionName: q.collection(namespace),
		Ids:            pointIDs(ids),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
		WithVectors:    &pb.WithVectorsSelector{SelectorOptions: &pb.WithVectorsSelector_Enable{Enable: true}},
	})
	if err != nil {
		if isNotFound(err) {
			return map[string]Point{}, nil
		}
		return nil, fmt.Errorf("fetch %s: %w", namespace, err)
	}
	out := make(map[string]Point, len(resp.Result))
	for _, r := range resp.Result {
		id, md := fromPayload(r.Payload, r.Id)
		out[id] = Point{
			ID:       id,
			Vector:   r.GetVectors().GetVector().GetData(),
			Metadata: md,
		}
	}
	return out, nil
}

// Update overwrites an existing point; Qdrant upserts are replace-by-id.
func (q *Qdrant) Update(ctx context.Context, namespace string, point Point) error {
	return q.Upsert(ctx, namespace, []Point{point})
}

func (q *Qdrant) Delete(ctx context.Context, namespace string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return q.deletePoints(ctx, namespace, &pb.PointsSelector{
		PointsSelectorOneOf: &pb.PointsSelector_Points{
			Points: &pb.PointsIdsList{Ids: pointIDs(ids)},
		},
	})
}

// DeleteAll drops the namespace's collection; the next write recreates it.
func (q *Qdrant) DeleteAll(ctx context.Context, namespace string) error {
	name := q.collection(namespace)
	q.mu.Lock()
	defer q.mu.Unlock()
	_, err := q.collections.Delete(ctx, &pb.DeleteCollection{CollectionName: name})
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("delete collection %s: %w", name, err)
	}
	delete(q.ensured, name)
	return nil
}

func (q *Qdrant) DeleteWhere(ctx context.Context, namespace, field, value string) error {
	return q.deletePoints(ctx, namespace, &pb.PointsSelector{
		PointsSelectorOneOf: &pb.PointsSelector_Filter{
			Filter: &pb.Filter{
				Must: []*pb.Condition{{
					ConditionOneOf: &pb.Condition_Field{
						Field: &pb.FieldCondition{
							Key:   field,
							Match: &pb.Match{MatchValue: &pb.Match_Keyword{Keyword: value}},
						},
					},
				}},
			},
		},
	})
}

func (q *Qdrant) deletePoints(ctx context.Context, namespace string, selector *pb.PointsSelector) error {
	wait := true
	_, err := q.points.Delete(ctx, &pb.DeletePoints{
		CollectionName: q.collection(namespace),
		Wait:           &wait,
		Points:         selector,
	})
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("delete from %s: %w", namespace, err)
	}
	return nil
}

func (q *Qdrant) Stats(ctx context.Context) (map[string]int, error) {
	resp, err := q.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}
	stats := make(map[string]int)
	exact := true
	for _, c := range resp.Collections {
		if !strings.HasPrefix(c.Name, q.prefix) {
			continue
		}
		count, err := q.points.Count(ctx, &pb.CountPoints{CollectionName: c.Name, Exact: &exact})
		if err != nil {
			return nil, fmt.Errorf("count %s: %w", c.Name, err)
		}
		stats[strings.TrimPrefix(c.Name, q.prefix)] = int(count.GetResult().GetCount())
	}
	return stats, nil
}

// Close tears down the underlying gRPC connection.
func (q *Qdrant) Close() error {
	return q.conn.Close()
}

func isNotFound(err error) bool {
	return status.Code(err) == codes.NotFound
}

func pointIDs(ids []string) []*pb.PointId {
	out := make([]*pb.PointId, len(ids))
	for i, id := range ids {
		out[i] = &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: PointUUID(id)}}
	}
	return out
}

func toPointStruct(p Point) *pb.PointStruct {
	payload := make(map[string]*pb.Value, len(p.Metadata)+1)
	for k, v := range p.Metadata {
		payload[k] = toValue(v)
	}
	payload[idKey] = toValue(p.ID)
	return &pb.PointStruct{
		Id:      &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: PointUUID(p.ID)}},
		Vectors: &pb.Vectors{VectorsOptions: &pb.Vectors_Vector{Vector: &pb.Vector{Data: p.Vector}}},
		Payload: payload,
	}
}

// fromPayload splits the caller id back out of a stored payload.
func fromPayload(payload map[string]*pb.Value, pid *pb.PointId) (string, map[string]any) {
	md := make(map[string]any, len(payload))
	for k, v := range payload {
		md[k] = fromValue(v)
	}
	id, _ := md[idKey].(string)
	delete(md, idKey)
	if id == "" {
		id = pid.GetUuid()
	}
	return id, md
}

func toValue(v any) *pb.Value {
	switch t := v.(type) {
	case nil:
		return &pb.Value{Kind: &pb.Value_NullValue{NullValue: pb.NullValue_NULL_VALUE}}
	case string:
		return &pb.Value{Kind: &pb.Value_StringValue{StringValue: t}}
	case bool:
		return &pb.Value{Kind: &pb.Value_BoolValue{BoolValue: t}}
	case int:
		return &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: int64(t)}}
	case int64:
		return &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: t}}
	case float32:
		return &pb.Value{Kind: &pb.Value_DoubleValue{DoubleValue: float64(t)}}
	case float64:
		return &pb.Value{Kind: &pb.Value_DoubleValue{DoubleValue: t}}
	case []string:
		values := make([]*pb.Value, len(t))
		for i, s := range t {
			values[i] = toValue(s)
		}
		return &pb.Value{Kind: &pb.Value_ListValue{ListValue: &pb.ListValue{Values: values}}}
	case []any:
		values := make([]*pb.Value, len(t))
		for i, e := range t {
			values[i] = toValue(e)
		}
		return &pb.Value{Kind: &pb.Value_ListValue{ListValue: &pb.ListValue{Values: values}}}
	case map[string]any:
		fields := make(map[string]*pb.Value, len(t))
		for k, e := range t {
			fields[k] = toValue(e)
		}
		return &pb.Value{Kind: &pb.Value_StructValue{StructValue: &pb.Struct{Fields: fields}}}
	default:
		return &pb.Value{Kind: &pb.Value_StringValue{StringValue: fmt.Sprint(t)}}
	}
}

func fromValue(v *pb.Value) any {
	switch k := v.GetKind().(type) {
	case *pb.Value_StringValue:
		return k.StringValue
	case *pb.Value_BoolValue:
		return k.BoolValue
	case *pb.Value_IntegerValue:
		return k.IntegerValue
	case *pb.Value_DoubleValue:
		return k.DoubleValue
	case *pb.Value_ListValue:
		out := make([]any, 0, len(k.ListValue.GetValues()))
		for _, e := range k.ListValue.GetValues() {
			out = append(out, fromValue(e))
		}
		return out
	case *pb.Value_StructValue:
		out := make(map[string]any, len(k.StructValue.GetFields()))
		for name, e := range k.StructValue.GetFields() {
			out[name] = fromValue(e)
		}
		return out
	default:
		return nil
	}
}
