package viewhost

import (
	"encoding/json"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

const (
	tagDefault  = "default"
	tagRequired = "required"
	tagDesc     = "desc"
)

// ConfigValidator is implemented by config structs with checks beyond the
// `required` tag. Validate runs after defaults are applied.
type ConfigValidator interface {
	Validate() error
}

// ProcessConfigDefaults sets every zero-valued field carrying a `default:"..."` tag.
// Nested structs are walked; nil struct pointers are left nil.
//
//	type ServerConfig struct {
//	    Address string        `yaml:"address" default:":8080"`
//	    Timeout time.Duration `yaml:"timeout" default:"15s"`
//	    Origins []string      `yaml:"origins" default:"[\"*\"]"`
//	}
func ProcessConfigDefaults(cfg any) error {
	v, err := configStruct(cfg)
	if err != nil {
		return err
	}
	return processStructDefaults(v)
}

func configStruct(cfg any) (reflect.Value, error) {
	if cfg == nil {
		return reflect.Value{}, ErrConfigNil
	}
	v := reflect.ValueOf(cfg)
	if v.Kind() != reflect.Ptr || v.IsNil() {
		return reflect.Value{}, ErrConfigNotPointer
	}
	v = v.Elem()
	if v.Kind() != reflect.Struct {
		return reflect.Value{}, ErrConfigNotStruct
	}
	return v, nil
}

func processStructDefaults(v reflect.Value) error {
	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)
		if !field.CanSet() {
			continue
		}

		if field.Kind() == reflect.Struct && field.Type() != reflect.TypeOf(time.Time{}) {
			if err := processStructDefaults(field); err != nil {
				return err
			}
			continue
		}
		if field.Kind() == reflect.Ptr && field.Type().Elem().Kind() == reflect.Struct {
			if !field.IsNil() {
				if err := processStructDefaults(field.Elem()); err != nil {
					return err
				}
			}
			continue
		}

		defaultVal, ok := fieldType.Tag.Lookup(tagDefault)
		if !ok || !isZeroValue(field) {
			continue
		}
		if err := setDefaultValue(field, defaultVal); err != nil {
			return fmt.Errorf("failed to set default value for %s: %w", fieldType.Name, err)
		}
	}
	return nil
}

// ValidateConfigRequired reports every `required:"true"` field still holding its zero value.
func ValidateConfigRequired(cfg any) error {
	v, err := configStruct(cfg)
	if err != nil {
		return err
	}

	var missing []string
	validateRequiredFields(v, "", &missing)
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrConfigRequiredFieldMissing, strings.Join(missing, ", "))
	}
	return nil
}

func validateRequiredFields(v reflect.Value, prefix string, missing *[]string) {
	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)
		if !field.CanSet() {
			continue
		}
		name := fieldType.Name
		if prefix != "" {
			name = prefix + "." + name
		}

		switch {
		case field.Kind() == reflect.Struct:
			validateRequiredFields(field, name, missing)
		case field.Kind() == reflect.Ptr && field.Type().Elem().Kind() == reflect.Struct:
			if !field.IsNil() {
				validateRequiredFields(field.Elem(), name, missing)
			} else if isFieldRequired(&fieldType) {
				*missing = append(*missing, name)
			}
		case isFieldRequired(&fieldType) && isZeroValue(field):
			*missing = append(*missing, name)
		}
	}
}

func isFieldRequired(field *reflect.StructField) bool {
	required, ok := field.Tag.Lookup(tagRequired)
	return ok && required == "true"
}

func isZeroValue(v reflect.Value) bool {
	switch v.Kind() { //nolint:exhaustive // remaining kinds are never zero for our purposes
	case reflect.Array, reflect.Map, reflect.Slice, reflect.String:
		return v.Len() == 0
	case reflect.Bool:
		return !v.Bool()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return v.Int() == 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return v.Uint() == 0
	case reflect.Float32, reflect.Float64:
		return v.Float() == 0
	case reflect.Interface, reflect.Ptr:
		return v.IsNil()
	case reflect.Invalid:
		return true
	default:
		return false
	}
}

func setDefaultValue(field reflect.Value, defaultVal string) error {
	if field.Type() == reflect.TypeOf(time.Duration(0)) {
		d, err := time.ParseDuration(defaultVal)
		if err != nil {
			return fmt.Errorf("%w: duration %q: %w", ErrDefaultValueParseError, defaultVal, err)
		}
		field.SetInt(int64(d))
		return nil
	}

	switch field.Kind() { //nolint:exhaustive // unsupported kinds fall through to the error
	case reflect.String:
		field.SetString(defaultVal)
	case reflect.Bool:
		b, err := strconv.ParseBool(defaultVal)
		if err != nil {
			return fmt.Errorf("%w: bool %q: %w", ErrDefaultValueParseError, defaultVal, err)
		}
		field.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		i, err := strconv.ParseInt(defaultVal, 10, 64)
		if err != nil || field.OverflowInt(i) {
			return fmt.Errorf("%w: int %q for %s", ErrDefaultValueParseError, defaultVal, field.Type())
		}
		field.SetInt(i)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u, err := strconv.ParseUint(defaultVal, 10, 64)
		if err != nil || field.OverflowUint(u) {
			return fmt.Errorf("%w: uint %q for %s", ErrDefaultValueParseError, defaultVal, field.Type())
		}
		field.SetUint(u)
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(defaultVal, 64)
		if err != nil || field.OverflowFloat(f) {
			return fmt.Errorf("%w: float %q for %s", ErrDefaultValueParseError, defaultVal, field.Type())
		}
		field.SetFloat(f)
	case reflect.Slice, reflect.Map:
		// Slices and maps take a JSON literal.
		ptr := reflect.New(field.Type())
		if err := json.Unmarshal([]byte(defaultVal), ptr.Interface()); err != nil {
			return fmt.Errorf("%w: %s %q: %w", ErrDefaultValueParseError, field.Kind(), defaultVal, err)
		}
		field.Set(ptr.Elem())
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedTypeForDefault, field.Kind())
	}
	return nil
}

// ValidateConfig applies defaults, checks required fields and finally runs
// ConfigValidator when cfg implements it.
func ValidateConfig(cfg any) error {
	if cfg == nil {
		return ErrConfigNil
	}
	if err := ProcessConfigDefaults(cfg); err != nil {
		return err
	}
	if err := ValidateConfigRequired(cfg); err != nil {
		return err
	}
	if validator, ok := cfg.(ConfigValidator); ok {
		if err := validator.Validate(); err != nil {
			return fmt.Errorf("%w: %w", ErrConfigValidationFailed, err)
		}
	}
	return nil
}

// GenerateSampleConfig renders a defaulted instance of cfg's type as "yaml", "json" or "toml".
func GenerateSampleConfig(cfg any, format string) ([]byte, error) {
	if cfg == nil {
		return nil, ErrConfigNil
	}
	t := reflect.TypeOf(cfg)
	if t.Kind() != reflect.Ptr {
		return nil, ErrConfigNotPointer
	}

	sample := reflect.New(t.Elem()).Interface()
	if err := ProcessConfigDefaults(sample); err != nil {
		return nil, err
	}

	switch strings.ToLower(format) {
	case "yaml", "yml":
		data, err := yaml.Marshal(sample)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal to YAML: %w", err)
		}
		return data, nil
	case "json":
		data, err := json.MarshalIndent(sample, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("failed to marshal to JSON: %w", err)
		}
		return data, nil
	case "toml":
		var buf strings.Builder
		if err := toml.NewEncoder(&buf).Encode(sample); err != nil {
			return nil, fmt.Errorf("failed to marshal to TOML: %w", err)
		}
		return []byte(buf.String()), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormatType, format)
	}
}

// SaveSampleConfig writes GenerateSampleConfig's output to filePath.
func SaveSampleConfig(cfg any, format, filePath string) error {
	data, err := GenerateSampleConfig(cfg, format)
	if err != nil {
		return err
	}
	if err := os.WriteFile(filePath, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file to %s: %w", filePath, err)
	}
	return nil
}

// ConfigFieldDoc describes one configurable field.
type ConfigFieldDoc struct {
	Path        string
	Type        string
	Default     string
	Required    bool
	Description string
}

// DescribeConfig lists the leaf fields of cfg with their tags, for `config describe`.
func DescribeConfig(cfg any) ([]ConfigFieldDoc, error) {
	v, err := configStruct(cfg)
	if err != nil {
		return nil, err
	}
	var docs []ConfigFieldDoc
	describeStruct(v.Type(), "", &docs)
	return docs, nil
}

func describeStruct(t reflect.Type, prefix string, docs *[]ConfigFieldDoc) {
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		name := f.Tag.Get("yaml")
		if idx := strings.IndexByte(name, ','); idx >= 0 {
			name = name[:idx]
		}
		if name == "" || name == "-" {
			name = f.Name
		}
		if prefix != "" {
			name = prefix + "." + name
		}

		ft := f.Type
		if ft.Kind() == reflect.Ptr {
			ft = ft.Elem()
		}
		if ft.Kind() == reflect.Struct && ft != reflect.TypeOf(time.Time{}) {
			describeStruct(ft, name, docs)
			continue
		}
		*docs = append(*docs, ConfigFieldDoc{
			Path:        name,
			Type:        f.Type.String(),
			Default:     f.Tag.Get(tagDefault),
			Required:    isFieldRequired(&f),
			Description: f.Tag.Get(tagDesc),
		})
	}
}
