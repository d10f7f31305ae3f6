package models

import (
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
)

// commandPlaceholderRegex matches a flag or arg value that consists entirely
// of a single {{name}} placeholder to be rewritten against input/output maps.
var commandPlaceholderRegex = regexp.MustCompile("^\\{\\{ *(.+?) *}}$")

// Flag is a single named command line flag and its scalar value.
type Flag struct {
	Name  string
	Value interface{}
}

// Flags is an ordered collection of command line flags. Order is preserved
// from the submitted document so argv rendering is deterministic, while the
// param hash canonicalizes by sorted name so flag order does not affect it.
type Flags []Flag

// Get returns the value of the named flag if present.
func (f Flags) Get(name string) (interface{}, bool) {
	for _, flag := range f {
		if flag.Name == name {
			return flag.Value, true
		}
	}
	return nil, false
}

func (f Flags) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, flag := range f {
		if i > 0 {
			buf.WriteByte(',')
		}
		writeJSONScalar(&buf, flag.Name)
		buf.WriteByte(':')
		writeJSONScalar(&buf, flag.Value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (f *Flags) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return errors.Wrap(err, "error parsing flags")
	}
	if tok == nil {
		*f = nil
		return nil
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return errors.New("error flags must be a JSON object")
	}
	var flags Flags
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return errors.Wrap(err, "error parsing flag name")
		}
		name, ok := keyTok.(string)
		if !ok {
			return errors.Errorf("error unexpected flag name token: %v", keyTok)
		}
		var raw interface{}
		if err := dec.Decode(&raw); err != nil {
			return errors.Wrapf(err, "error parsing value for flag %q", name)
		}
		value, err := normalizeScalar(raw)
		if err != nil {
			return errors.Wrapf(err, "error invalid value for flag %q", name)
		}
		flags = append(flags, Flag{Name: name, Value: value})
	}
	if _, err := dec.Token(); err != nil {
		return errors.Wrap(err, "error parsing flags")
	}
	*f = flags
	return nil
}

// MarshalBSONValue stores the flags as an ordered BSON document so the
// submission order survives a round trip through the job store.
func (f Flags) MarshalBSONValue() (bsontype.Type, []byte, error) {
	doc := make(bson.D, 0, len(f))
	for _, flag := range f {
		doc = append(doc, bson.E{Key: flag.Name, Value: flag.Value})
	}
	return bson.MarshalValue(doc)
}

func (f *Flags) UnmarshalBSONValue(t bsontype.Type, data []byte) error {
	if t == bsontype.Null {
		*f = nil
		return nil
	}
	raw := bson.RawValue{Type: t, Value: data}
	var doc bson.D
	if err := raw.Unmarshal(&doc); err != nil {
		return errors.Wrap(err, "error parsing flags document")
	}
	flags := make(Flags, 0, len(doc))
	for _, elem := range doc {
		value, err := normalizeScalar(elem.Value)
		if err != nil {
			return errors.Wrapf(err, "error invalid value for flag %q", elem.Key)
		}
		flags = append(flags, Flag{Name: elem.Key, Value: value})
	}
	*f = flags
	return nil
}

// CanonicalJSON returns the flags encoded as a compact JSON object with names
// sorted lexicographically. Two specs with the same flags submitted in a
// different order canonicalize to identical bytes.
func (f Flags) CanonicalJSON() []byte {
	sorted := make(Flags, len(f))
	copy(sorted, f)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, flag := range sorted {
		if i > 0 {
			buf.WriteByte(',')
		}
		writeJSONScalar(&buf, flag.Name)
		buf.WriteByte(':')
		writeJSONScalar(&buf, flag.Value)
	}
	buf.WriteByte('}')
	return buf.Bytes()
}

// Args is an ordered sequence of positional arguments. Scalars of any type
// are accepted on the wire and normalized to their string form.
type Args []string

func (a *Args) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw []interface{}
	if err := dec.Decode(&raw); err != nil {
		return errors.Wrap(err, "error parsing args")
	}
	args := make(Args, 0, len(raw))
	for i, entry := range raw {
		value, err := normalizeScalar(entry)
		if err != nil {
			return errors.Wrapf(err, "error invalid arg at index %d", i)
		}
		args = append(args, FormatScalar(value))
	}
	*a = args
	return nil
}

// CommandSpec is a serializable subprocess description: a program, named
// flags, and positional args, with optional shell, working directory and
// environment settings. Specs are immutable once attached to a step; the
// resolver returns copies.
type CommandSpec struct {
	Program string            `json:"program" bson:"program"`
	Flags   Flags             `json:"flags,omitempty" bson:"flags,omitempty"`
	Args    Args              `json:"args,omitempty" bson:"args,omitempty"`
	Shell   bool              `json:"shell,omitempty" bson:"shell,omitempty"`
	Cwd     string            `json:"cwd,omitempty" bson:"cwd,omitempty"`
	Env     map[string]string `json:"env,omitempty" bson:"env,omitempty"`
}

// Clone returns a deep copy of the spec.
func (s *CommandSpec) Clone() *CommandSpec {
	clone := &CommandSpec{
		Program: s.Program,
		Shell:   s.Shell,
		Cwd:     s.Cwd,
	}
	if s.Flags != nil {
		clone.Flags = make(Flags, len(s.Flags))
		copy(clone.Flags, s.Flags)
	}
	if s.Args != nil {
		clone.Args = make(Args, len(s.Args))
		copy(clone.Args, s.Args)
	}
	if s.Env != nil {
		clone.Env = make(map[string]string, len(s.Env))
		for k, v := range s.Env {
			clone.Env[k] = v
		}
	}
	return clone
}

// Argv renders the spec to an argument vector of the form
// [program, flag1, value1, ..., arg1, arg2, ...]. Flag values containing
// whitespace are split into separate tokens so external programs receive
// them as distinct arguments; empty values contribute the flag name only.
func (s *CommandSpec) Argv() []string {
	argv := []string{s.Program}
	for _, flag := range s.Flags {
		argv = append(argv, flag.Name)
		argv = append(argv, strings.Fields(FormatScalar(flag.Value))...)
	}
	for _, arg := range s.Args {
		argv = append(argv, arg)
	}
	return argv
}

// ResolvePlaceholders returns a copy of the spec with every flag value and
// positional arg of the exact form {{name}} substituted from the provided
// maps, inputs searched before outputs. Values that are not a lone
// placeholder, and placeholders matching neither map, pass through unchanged.
func (s *CommandSpec) ResolvePlaceholders(inputs map[string]string, outputs map[string]string) *CommandSpec {
	resolved := s.Clone()
	for i, flag := range resolved.Flags {
		if str, ok := flag.Value.(string); ok {
			resolved.Flags[i].Value = ResolvePlaceholder(str, inputs, outputs)
		}
	}
	for i, arg := range resolved.Args {
		resolved.Args[i] = ResolvePlaceholder(arg, inputs, outputs)
	}
	return resolved
}

// ParamHash returns the first 8 hex characters of an MD5 digest over the
// canonical JSON encoding of the flags. It is the suffix of a step's
// composite name, so any flag name or value change relocates the step's
// output directory.
func (s *CommandSpec) ParamHash() string {
	sum := md5.Sum(s.Flags.CanonicalJSON())
	return hex.EncodeToString(sum[:])[:8]
}

// ResolvePlaceholder substitutes a value of the exact form {{name}} from the
// provided maps, inputs searched before outputs. Any other value is returned
// unchanged. Workers apply this to individual argv tokens as well, so
// placeholders inside multi-token flag values still resolve after splitting.
func ResolvePlaceholder(value string, inputs map[string]string, outputs map[string]string) string {
	match := commandPlaceholderRegex.FindStringSubmatch(value)
	if match == nil {
		return value
	}
	name := match[1]
	if resolved, ok := inputs[name]; ok {
		return resolved
	}
	if resolved, ok := outputs[name]; ok {
		return resolved
	}
	return value
}

// FormatScalar renders a normalized scalar flag value to its command line
// string form.
func FormatScalar(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// normalizeScalar reduces decoded JSON/BSON values to the scalar types the
// command model supports: string, bool, int64, float64 or nil.
func normalizeScalar(value interface{}) (interface{}, error) {
	switch v := value.(type) {
	case nil, string, bool, int64, float64:
		return v, nil
	case int:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return i, nil
		}
		f, err := v.Float64()
		if err != nil {
			return nil, errors.Wrapf(err, "error parsing number %q", v.String())
		}
		return f, nil
	default:
		return nil, errors.Errorf("error value must be a scalar, got %T", value)
	}
}

func writeJSONScalar(buf *bytes.Buffer, value interface{}) {
	switch v := value.(type) {
	case nil:
		buf.WriteString("null")
	case string:
		encoded, _ := json.Marshal(v)
		buf.Write(encoded)
	case bool:
		buf.WriteString(strconv.FormatBool(v))
	case int64:
		buf.WriteString(strconv.FormatInt(v, 10))
	case float64:
		buf.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
	default:
		encoded, _ := json.Marshal(fmt.Sprintf("%v", v))
		buf.Write(encoded)
	}
}
