package repository

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"

	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

const (
	defaultVectorDimension = 768

	payloadEmbeddingID = "embedding_id"
	payloadDocument    = "document"
)

// ErrDuplicateID is returned by Add when the embedding id is already stored.
var ErrDuplicateID = errors.New("embedding id already exists")

// pointNamespace seeds the name-based UUIDs used as Qdrant point ids.
var pointNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("imgfind/points"))

// Embedder turns text into a vector. The store embeds documents and queries
// itself so callers deal in text only.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedQuery(ctx context.Context, query string) ([]float32, error)
}

// QdrantConnectionConfig holds configuration for Qdrant connection
type QdrantConnectionConfig struct {
	Host            string
	Port            int
	Collection      string
	APIKey          string // Qdrant Cloud API Key (enables TLS automatically)
	UseTLS          bool   // Explicitly enable TLS without API Key
	VectorDimension int
}

// apiKeyInterceptor creates a unary interceptor that adds API key to metadata
func apiKeyInterceptor(apiKey string) grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply interface{}, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		ctx = metadata.AppendToOutgoingContext(ctx, "api-key", apiKey)
		return invoker(ctx, method, req, reply, cc, opts...)
	}
}

// QdrantRepository is the persistent vector store of image descriptions.
type QdrantRepository struct {
	conn            *grpc.ClientConn
	pointsClient    pb.PointsClient
	collectClient   pb.CollectionsClient
	embedder        Embedder
	collectionName  string
	vectorDimension int
}

// NewQdrantRepository creates a new QdrantRepository
// Supports both local Qdrant (insecure) and Qdrant Cloud (TLS + API Key)
func NewQdrantRepository(cfg *QdrantConnectionConfig, embedder Embedder) (*QdrantRepository, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	vectorDimension := cfg.VectorDimension
	if vectorDimension <= 0 {
		vectorDimension = defaultVectorDimension
	}

	var opts []grpc.DialOption

	// TLS is enabled if: APIKey is set OR UseTLS is explicitly true
	useTLS := cfg.UseTLS || cfg.APIKey != ""

	if useTLS {
		tlsConfig := &tls.Config{
			MinVersion: tls.VersionTLS13,
		}
		opts = append(opts, grpc.WithTransportCredentials(credentials.NewTLS(tlsConfig)))

		if cfg.APIKey != "" {
			opts = append(opts, grpc.WithUnaryInterceptor(apiKeyInterceptor(cfg.APIKey)))
		}
	} else {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}

	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to qdrant: %w", err)
	}

	return newQdrantRepository(conn, pb.NewPointsClient(conn), pb.NewCollectionsClient(conn), embedder, cfg.Collection, vectorDimension), nil
}

func newQdrantRepository(conn *grpc.ClientConn, points pb.PointsClient, collections pb.CollectionsClient, embedder Embedder, collection string, dim int) *QdrantRepository {
	return &QdrantRepository{
		conn:            conn,
		pointsClient:    points,
		collectClient:   collections,
		embedder:        embedder,
		collectionName:  collection,
		vectorDimension: dim,
	}
}

// Close closes the gRPC connection
func (r *QdrantRepository) Close() error {
	if r.conn == nil {
		return nil
	}
	return r.conn.Close()
}

// EnsureCollection opens the collection, creating it if it doesn't exist.
// An existing collection with a different vector size is an error, and so
// is any lookup failure other than NotFound.
func (r *QdrantRepository) EnsureCollection(ctx context.Context) error {
	info, err := r.collectClient.Get(ctx, &pb.GetCollectionInfoRequest{
		CollectionName: r.collectionName,
	})
	if err == nil {
		if size, ok := collectionVectorSize(info.GetResult()); ok {
			if size != uint64(r.vectorDimension) {
				return fmt.Errorf("collection %s has vector size %d, expected %d", r.collectionName, size, r.vectorDimension)
			}
		}
		return nil
	}
	if status.Code(err) != codes.NotFound {
		return fmt.Errorf("failed to get collection %s: %w", r.collectionName, err)
	}

	_, err = r.collectClient.Create(ctx, &pb.CreateCollection{
		CollectionName: r.collectionName,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     uint64(r.vectorDimension),
					Distance: pb.Distance_Cosine,
				},
			},
		},
		HnswConfig: &pb.HnswConfigDiff{
			M:                 optionalUint64(16),
			EfConstruct:       optionalUint64(128),
			FullScanThreshold: optionalUint64(10000),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	return nil
}

func optionalUint64(v uint64) *uint64 {
	return &v
}

func collectionVectorSize(info *pb.CollectionInfo) (uint64, bool) {
	if info == nil {
		return 0, false
	}

	params := info.GetConfig().GetParams()
	if params == nil {
		return 0, false
	}

	vectors := params.GetVectorsConfig()
	if vectors == nil {
		return 0, false
	}

	if single := vectors.GetParams(); single != nil {
		if size := single.GetSize(); size > 0 {
			return size, true
		}
	}

	if paramsMap := vectors.GetParamsMap(); paramsMap != nil {
		for _, vectorParams := range paramsMap.GetMap() {
			if vectorParams == nil {
				continue
			}
			if size := vectorParams.GetSize(); size > 0 {
				return size, true
			}
		}
	}

	return 0, false
}

// PointID maps an embedding id to its Qdrant point id. The mapping is
// deterministic per collection.
func PointID(collection, embeddingID string) string {
	return uuid.NewSHA1(pointNamespace, []byte(collection+":"+embeddingID)).String()
}

func (r *QdrantRepository) pointID(embeddingID string) *pb.PointId {
	return &pb.PointId{
		PointIdOptions: &pb.PointId_Uuid{Uuid: PointID(r.collectionName, embeddingID)},
	}
}

// Exists reports whether an entry with the embedding id is stored.
func (r *QdrantRepository) Exists(ctx context.Context, embeddingID string) (bool, error) {
	resp, err := r.pointsClient.Get(ctx, &pb.GetPoints{
		CollectionName: r.collectionName,
		Ids:            []*pb.PointId{r.pointID(embeddingID)},
		WithPayload: &pb.WithPayloadSelector{
			SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: false},
		},
	})
	if err != nil {
		return false, fmt.Errorf("failed to get point: %w", err)
	}
	return len(resp.GetResult()) > 0, nil
}

// Add embeds document and stores it under embeddingID. It never overwrites:
// an existing id yields ErrDuplicateID and the stored entry is unchanged.
func (r *QdrantRepository) Add(ctx context.Context, embeddingID, document string) error {
	exists, err := r.Exists(ctx, embeddingID)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: %s", ErrDuplicateID, embeddingID)
	}

	vector, err := r.embedder.Embed(ctx, document)
	if err != nil {
		return fmt.Errorf("failed to embed document: %w", err)
	}

	wait := true
	_, err = r.pointsClient.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: r.collectionName,
		Wait:           &wait,
		Points: []*pb.PointStruct{
			{
				Id: r.pointID(embeddingID),
				Vectors: &pb.Vectors{
					VectorsOptions: &pb.Vectors_Vector{
						Vector: &pb.Vector{Data: vector},
					},
				},
				Payload: map[string]*pb.Value{
					payloadEmbeddingID: {Kind: &pb.Value_StringValue{StringValue: embeddingID}},
					payloadDocument:    {Kind: &pb.Value_StringValue{StringValue: document}},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to upsert point: %w", err)
	}

	return nil
}

// QueryMatch is one nearest-neighbour result.
type QueryMatch struct {
	ID       string
	Document string
	// Distance is squared L2 between unit vectors, 2 - 2*cosine, in [0, 4].
	Distance float64
}

// Query returns up to n entries nearest to text, ascending by distance.
func (r *QdrantRepository) Query(ctx context.Context, text string, n int) ([]QueryMatch, error) {
	if n <= 0 {
		return []QueryMatch{}, nil
	}

	vector, err := r.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	resp, err := r.pointsClient.Search(ctx, &pb.SearchPoints{
		CollectionName: r.collectionName,
		Vector:         vector,
		Limit:          uint64(n),
		WithPayload: &pb.WithPayloadSelector{
			SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}

	matches := make([]QueryMatch, 0, len(resp.GetResult()))
	for _, scored := range resp.GetResult() {
		payload := scored.GetPayload()
		matches = append(matches, QueryMatch{
			ID:       payload[payloadEmbeddingID].GetStringValue(),
			Document: payload[payloadDocument].GetStringValue(),
			Distance: CosineToDistance(scored.GetScore()),
		})
	}

	return matches, nil
}

// CosineToDistance converts a cosine similarity score into squared L2
// distance between unit vectors.
func CosineToDistance(score float32) float64 {
	d := 2 - 2*float64(score)
	if d < 0 {
		return 0
	}
	return d
}

// Count returns the exact number of stored entries.
func (r *QdrantRepository) Count(ctx context.Context) (int, error) {
	exact := true
	resp, err := r.pointsClient.Count(ctx, &pb.CountPoints{
		CollectionName: r.collectionName,
		Exact:          &exact,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count points: %w", err)
	}
	return int(resp.GetResult().GetCount()), nil
}
