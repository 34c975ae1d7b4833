package protocol

import (
	"errors"
	"fmt"
	"math"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/GoSim-25-26J-441/bench-core/pkg/models"
)

// ErrMalformed is returned when a struct does not decode to a message
var ErrMalformed = errors.New("malformed message")

// Encode converts a message into the {"type", "body"} envelope
func Encode(m Message) (*structpb.Struct, error) {
	var body map[string]*structpb.Value
	switch msg := m.(type) {
	case Register:
		body = fields{"name": str(msg.Name), "version": str(msg.Version)}
	case RegisterAck:
		body = fields{"worker_id": str(msg.WorkerID), "heartbeat_interval_ms": num(float64(msg.HeartbeatInterval.Milliseconds()))}
	case Heartbeat:
		body = fields{"worker_id": str(msg.WorkerID), "job_id": str(msg.JobID)}
	case Assign:
		body = fields{
			"job_id":    str(msg.JobID),
			"attempt":   num(float64(msg.Attempt)),
			"dataset":   encodeDataset(msg.Dataset),
			"candidate": encodeCandidate(msg.Candidate),
			"config":    encodeConfig(msg.Config),
		}
	case Idle:
		body = fields{}
	case Report:
		body = fields{
			"worker_id":  str(msg.WorkerID),
			"job_id":     str(msg.JobID),
			"attempt":    num(float64(msg.Attempt)),
			"scores":     encodeScores(msg.Scores),
			"error_kind": str(msg.ErrorKind),
			"error":      str(msg.Error),
		}
	case ReportAck:
		body = fields{"accepted": structpb.NewBoolValue(msg.Accepted)}
	case Reject:
		body = fields{"reason": str(msg.Reason)}
	case nil:
		return nil, fmt.Errorf("%w: nil message", ErrMalformed)
	default:
		return nil, fmt.Errorf("%w: unknown message type %T", ErrMalformed, m)
	}
	return &structpb.Struct{Fields: fields{
		"type": str(m.Type()),
		"body": structpb.NewStructValue(&structpb.Struct{Fields: body}),
	}}, nil
}

// Decode is the inverse of Encode
func Decode(s *structpb.Struct) (Message, error) {
	if s == nil {
		return nil, fmt.Errorf("%w: empty envelope", ErrMalformed)
	}
	typ := s.GetFields()["type"].GetStringValue()
	b := reader{fields: s.GetFields()["body"].GetStructValue().GetFields()}

	var m Message
	switch typ {
	case TypeRegister:
		m = Register{Name: b.str("name"), Version: b.str("version")}
	case TypeRegisterAck:
		m = RegisterAck{WorkerID: b.str("worker_id"), HeartbeatInterval: time.Duration(b.int("heartbeat_interval_ms")) * time.Millisecond}
	case TypeHeartbeat:
		m = Heartbeat{WorkerID: b.str("worker_id"), JobID: b.str("job_id")}
	case TypeAssign:
		a := Assign{
			JobID:     b.str("job_id"),
			Attempt:   b.int("attempt"),
			Dataset:   decodeDataset(b.sub("dataset")),
			Candidate: decodeCandidate(b.sub("candidate")),
		}
		cfg, err := decodeConfig(b.list("config"))
		if err != nil {
			return nil, err
		}
		a.Config = cfg
		m = a
	case TypeIdle:
		m = Idle{}
	case TypeReport:
		m = Report{
			WorkerID:  b.str("worker_id"),
			JobID:     b.str("job_id"),
			Attempt:   b.int("attempt"),
			Scores:    decodeScores(b.list("scores")),
			ErrorKind: b.str("error_kind"),
			Error:     b.str("error"),
		}
	case TypeReportAck:
		m = ReportAck{Accepted: b.fields["accepted"].GetBoolValue()}
	case TypeReject:
		m = Reject{Reason: b.str("reason")}
	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrMalformed, typ)
	}
	if b.err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, typ, b.err)
	}
	return m, nil
}

type fields = map[string]*structpb.Value

func str(s string) *structpb.Value  { return structpb.NewStringValue(s) }
func num(f float64) *structpb.Value { return structpb.NewNumberValue(f) }

func strs(ss []string) *structpb.Value {
	vals := make([]*structpb.Value, len(ss))
	for i, s := range ss {
		vals[i] = str(s)
	}
	return structpb.NewListValue(&structpb.ListValue{Values: vals})
}

func encodeDataset(d models.DatasetRef) *structpb.Value {
	return structpb.NewStructValue(&structpb.Struct{Fields: fields{
		"name":      str(d.Name),
		"path":      str(d.Path),
		"unlabeled": structpb.NewBoolValue(d.Unlabeled),
	}})
}

func decodeDataset(r reader) models.DatasetRef {
	return models.DatasetRef{Name: r.str("name"), Path: r.str("path"), Unlabeled: r.fields["unlabeled"].GetBoolValue()}
}

func encodeCandidate(c models.CandidateSpec) *structpb.Value {
	return structpb.NewStructValue(&structpb.Struct{Fields: fields{
		"name":     str(c.Name),
		"kind":     str(c.Kind),
		"image":    str(c.Image),
		"command":  strs(c.Command),
		"required": strs(c.Required),
	}})
}

func decodeCandidate(r reader) models.CandidateSpec {
	return models.CandidateSpec{
		Name:     r.str("name"),
		Kind:     r.str("kind"),
		Image:    r.str("image"),
		Command:  r.strs("command"),
		Required: r.strs("required"),
	}
}

// Configuration values travel as text with their kind so that decoding
// restores the exact value, including integral floats.
func encodeConfig(c models.Configuration) *structpb.Value {
	params := c.Params()
	vals := make([]*structpb.Value, len(params))
	for i, p := range params {
		vals[i] = structpb.NewStructValue(&structpb.Struct{Fields: fields{
			"name":  str(p.Name),
			"kind":  str(p.Value.Kind().String()),
			"value": str(p.Value.String()),
		}})
	}
	return structpb.NewListValue(&structpb.ListValue{Values: vals})
}

func decodeConfig(items []*structpb.Value) (models.Configuration, error) {
	params := make([]models.Param, 0, len(items))
	for _, item := range items {
		r := reader{fields: item.GetStructValue().GetFields()}
		kind, err := models.ParseValueKind(r.str("kind"))
		if err != nil {
			return models.Configuration{}, fmt.Errorf("%w: config: %v", ErrMalformed, err)
		}
		v, err := models.ParseTypedValue(kind, r.str("value"))
		if err != nil {
			return models.Configuration{}, fmt.Errorf("%w: config: %v", ErrMalformed, err)
		}
		params = append(params, models.Param{Name: r.str("name"), Value: v})
	}
	return models.ConfigurationFromParams(params...), nil
}

func encodeScores(scores models.ScoreVector) *structpb.Value {
	vals := make([]*structpb.Value, len(scores))
	for i, s := range scores {
		vals[i] = num(s)
	}
	return structpb.NewListValue(&structpb.ListValue{Values: vals})
}

func decodeScores(items []*structpb.Value) models.ScoreVector {
	if len(items) == 0 {
		return nil
	}
	out := make(models.ScoreVector, len(items))
	for i, v := range items {
		out[i] = v.GetNumberValue()
	}
	return out
}

// reader pulls typed fields out of a struct body and remembers the first
// type error
type reader struct {
	fields map[string]*structpb.Value
	err    error
}

func (r *reader) str(key string) string {
	v, ok := r.fields[key]
	if !ok {
		return ""
	}
	if _, isStr := v.GetKind().(*structpb.Value_StringValue); !isStr && r.err == nil {
		r.err = fmt.Errorf("field %s is not a string", key)
	}
	return v.GetStringValue()
}

func (r *reader) int(key string) int {
	v, ok := r.fields[key]
	if !ok {
		return 0
	}
	f := v.GetNumberValue()
	if f != math.Trunc(f) && r.err == nil {
		r.err = fmt.Errorf("field %s is not an integer", key)
	}
	return int(f)
}

func (r *reader) list(key string) []*structpb.Value {
	return r.fields[key].GetListValue().GetValues()
}

func (r *reader) strs(key string) []string {
	items := r.list(key)
	if len(items) == 0 {
		return nil
	}
	out := make([]string, len(items))
	for i, v := range items {
		out[i] = v.GetStringValue()
	}
	return out
}

func (r *reader) sub(key string) reader {
	return reader{fields: r.fields[key].GetStructValue().GetFields()}
}
