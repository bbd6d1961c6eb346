package l6objects

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/banshee-data/autodrive/internal/lidar/l4perception"
	"github.com/banshee-data/autodrive/internal/lidar/l5tracks"
)

// Full method names of the object services. Both exchange
// google.protobuf.Struct messages.
const (
	ClassifyMethod = "/autodrive.objects.v1.Classifier/Classify"
	ScoreMethod    = "/autodrive.objects.v1.WeightModel/Score"
)

// GRPCClassifier calls a remote classifier service.
type GRPCClassifier struct {
	conn grpc.ClientConnInterface
}

// NewGRPCClassifier returns a Classifier backed by conn.
func NewGRPCClassifier(conn grpc.ClientConnInterface) *GRPCClassifier {
	return &GRPCClassifier{conn: conn}
}

// Classify implements Classifier.
func (c *GRPCClassifier) Classify(ctx context.Context, r Region) (Detection, error) {
	req, err := structpb.NewStruct(map[string]interface{}{
		"x":        r.Center.X,
		"y":        r.Center.Y,
		"bearing":  r.Bearing,
		"distance": r.Distance,
	})
	if err != nil {
		return Detection{}, fmt.Errorf("encode region: %w", err)
	}
	resp := &structpb.Struct{}
	if err := c.conn.Invoke(ctx, ClassifyMethod, req, resp); err != nil {
		return Detection{}, transportError(ctx, err)
	}
	return decodeDetection(resp)
}

// GRPCWeightModel calls a remote weight model service.
type GRPCWeightModel struct {
	conn grpc.ClientConnInterface
}

// NewGRPCWeightModel returns a WeightModel backed by conn.
func NewGRPCWeightModel(conn grpc.ClientConnInterface) *GRPCWeightModel {
	return &GRPCWeightModel{conn: conn}
}

// Score implements WeightModel.
func (m *GRPCWeightModel) Score(ctx context.Context, f l5tracks.Features) (float64, error) {
	v := f.Vector()
	values := make([]interface{}, len(v))
	for i, x := range v {
		values[i] = x
	}
	req, err := structpb.NewStruct(map[string]interface{}{"features": values})
	if err != nil {
		return 0, fmt.Errorf("encode features: %w", err)
	}
	resp := &structpb.Struct{}
	if err := m.conn.Invoke(ctx, ScoreMethod, req, resp); err != nil {
		return 0, transportError(ctx, err)
	}
	w, ok := resp.GetFields()["weight"]
	if !ok {
		return 0, fmt.Errorf("score response missing weight")
	}
	return w.GetNumberValue(), nil
}

func transportError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	switch status.Code(err) {
	case codes.Unavailable, codes.DeadlineExceeded:
		return fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}
	return err
}

func encodeDetection(d Detection) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]interface{}{
		"class_id": float64(d.ClassID),
		"score":    d.Score,
		"box":      []interface{}{d.Box.YMin, d.Box.XMin, d.Box.YMax, d.Box.XMax},
	})
}

func decodeDetection(s *structpb.Struct) (Detection, error) {
	fields := s.GetFields()
	id, ok := fields["class_id"]
	if !ok {
		return Detection{}, fmt.Errorf("classify response missing class_id")
	}
	d := Detection{
		ClassID: int(id.GetNumberValue()),
		Score:   fields["score"].GetNumberValue(),
	}
	if box := fields["box"].GetListValue().GetValues(); len(box) == 4 {
		d.Box = BoundingBox{
			YMin: box[0].GetNumberValue(),
			XMin: box[1].GetNumberValue(),
			YMax: box[2].GetNumberValue(),
			XMax: box[3].GetNumberValue(),
		}
	}
	return d, nil
}

func decodeRegion(s *structpb.Struct) Region {
	f := s.GetFields()
	return Region{
		Center: l4perception.Point{
			X: f["x"].GetNumberValue(),
			Y: f["y"].GetNumberValue(),
		},
		Bearing:  f["bearing"].GetNumberValue(),
		Distance: f["distance"].GetNumberValue(),
	}
}

func decodeFeatures(s *structpb.Struct) (l5tracks.Features, error) {
	v := s.GetFields()["features"].GetListValue().GetValues()
	if len(v) != 7 {
		return l5tracks.Features{}, fmt.Errorf("want 7 features, got %d", len(v))
	}
	return l5tracks.Features{
		Angle:    v[0].GetNumberValue(),
		X:        v[1].GetNumberValue(),
		Y:        v[2].GetNumberValue(),
		Distance: v[3].GetNumberValue(),
		VX:       v[4].GetNumberValue(),
		VY:       v[5].GetNumberValue(),
		Speed:    v[6].GetNumberValue(),
	}, nil
}

// RegisterClassifierServer exposes c on s under ClassifyMethod.
func RegisterClassifierServer(s grpc.ServiceRegistrar, c Classifier) {
	s.RegisterService(&classifierServiceDesc, c)
}

// RegisterWeightModelServer exposes m on s under ScoreMethod.
func RegisterWeightModelServer(s grpc.ServiceRegistrar, m WeightModel) {
	s.RegisterService(&weightModelServiceDesc, m)
}

var classifierServiceDesc = grpc.ServiceDesc{
	ServiceName: "autodrive.objects.v1.Classifier",
	HandlerType: (*Classifier)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Classify", Handler: classifyHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "autodrive/objects/v1/objects.proto",
}

var weightModelServiceDesc = grpc.ServiceDesc{
	ServiceName: "autodrive.objects.v1.WeightModel",
	HandlerType: (*WeightModel)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Score", Handler: scoreHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "autodrive/objects/v1/objects.proto",
}

func classifyHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := &structpb.Struct{}
	if err := dec(in); err != nil {
		return nil, err
	}
	call := func(ctx context.Context, req interface{}) (interface{}, error) {
		det, err := srv.(Classifier).Classify(ctx, decodeRegion(req.(*structpb.Struct)))
		if err != nil {
			return nil, status.Errorf(codes.Internal, "classify: %v", err)
		}
		return encodeDetection(det)
	}
	if interceptor == nil {
		return call(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ClassifyMethod}
	return interceptor(ctx, in, info, call)
}

func scoreHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := &structpb.Struct{}
	if err := dec(in); err != nil {
		return nil, err
	}
	call := func(ctx context.Context, req interface{}) (interface{}, error) {
		f, err := decodeFeatures(req.(*structpb.Struct))
		if err != nil {
			return nil, status.Error(codes.InvalidArgument, err.Error())
		}
		w, err := srv.(WeightModel).Score(ctx, f)
		if err != nil {
			return nil, status.Errorf(codes.Internal, "score: %v", err)
		}
		return structpb.NewStruct(map[string]interface{}{"weight": w})
	}
	if interceptor == nil {
		return call(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ScoreMethod}
	return interceptor(ctx, in, info, call)
}
