// Package feeders provides configuration feeders for YAML, JSON and TOML files and for
// prefixed environment variables. Every feeder implements FeedKey so a single source
// can carry several keyed sections.
package feeders

import (
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/golobby/cast"
)

// AffixedEnvFeeder fills `env` tagged fields from variables named
// PREFIX_<TAG>_SUFFIX. Either affix may be empty, not both.
type AffixedEnvFeeder struct {
	Prefix string
	Suffix string
}

func NewAffixedEnvFeeder(prefix, suffix string) AffixedEnvFeeder {
	return AffixedEnvFeeder{Prefix: prefix, Suffix: suffix}
}

func (f AffixedEnvFeeder) Feed(structure any) error {
	return f.fill(structure, f.Prefix)
}

// FeedKey fills target from variables whose prefix is extended with key, so section
// "sessions" under prefix "VIEWHOST" reads VIEWHOST_SESSIONS_<TAG>.
func (f AffixedEnvFeeder) FeedKey(key string, target any) error {
	prefix := key
	if f.Prefix != "" {
		prefix = f.Prefix + "_" + key
	}
	return f.fill(target, prefix)
}

func (f AffixedEnvFeeder) fill(structure any, prefix string) error {
	t := reflect.TypeOf(structure)
	if t == nil || t.Kind() != reflect.Ptr || t.Elem().Kind() != reflect.Struct {
		return ErrEnvInvalidStructure
	}
	if prefix == "" && f.Suffix == "" {
		return ErrEnvEmptyPrefixAndSuffix
	}
	return processStructFields(reflect.ValueOf(structure).Elem(), strings.ToUpper(prefix), strings.ToUpper(f.Suffix))
}

func processStructFields(rv reflect.Value, prefix, suffix string) error {
	for i := 0; i < rv.NumField(); i++ {
		field := rv.Field(i)
		fieldType := rv.Type().Field(i)
		if err := processField(field, &fieldType, prefix, suffix); err != nil {
			return fmt.Errorf("error in field '%s': %w", fieldType.Name, err)
		}
	}
	return nil
}

func processField(field reflect.Value, fieldType *reflect.StructField, prefix, suffix string) error {
	switch field.Kind() { //nolint:exhaustive // leaf kinds are handled by the env tag lookup
	case reflect.Struct:
		return processStructFields(field, prefix, suffix)
	case reflect.Pointer:
		if !field.IsNil() && field.Elem().Kind() == reflect.Struct {
			return processStructFields(field.Elem(), prefix, suffix)
		}
	}

	envTag, ok := fieldType.Tag.Lookup("env")
	if !ok {
		return nil
	}
	name := strings.ToUpper(envTag)
	if prefix != "" {
		name = prefix + "_" + name
	}
	if suffix != "" {
		name = name + "_" + suffix
	}
	if value := os.Getenv(name); value != "" {
		return setFieldValue(field, value)
	}
	return nil
}

func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return ErrFieldCannotBeSet
	}

	if field.Type() == reflect.TypeOf(time.Duration(0)) {
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("cannot convert value to duration: %w", err)
		}
		field.SetInt(int64(d))
		return nil
	}
	if field.Kind() == reflect.Slice && field.Type().Elem().Kind() == reflect.String {
		parts := strings.Split(value, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		field.Set(reflect.ValueOf(parts).Convert(field.Type()))
		return nil
	}

	converted, err := cast.FromType(value, field.Type())
	if err != nil {
		return fmt.Errorf("cannot convert value to type %v: %w", field.Type(), err)
	}
	field.Set(reflect.ValueOf(converted).Convert(field.Type()))
	return nil
}
