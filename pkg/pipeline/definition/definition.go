package definition

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	gferrors "github.com/vnykmshr/flowpipe/pkg/common/errors"
	"github.com/vnykmshr/flowpipe/pkg/pipeline"
)

const module = "definition"

// Definition is the serializable form of a pipeline.
type Definition struct {
	ID            string        `yaml:"id" json:"id" mapstructure:"id" validate:"required"`
	Name          string        `yaml:"name,omitempty" json:"name,omitempty" mapstructure:"name"`
	Description   string        `yaml:"description,omitempty" json:"description,omitempty" mapstructure:"description"`
	EnableCache   bool          `yaml:"enable_cache,omitempty" json:"enable_cache,omitempty" mapstructure:"enable_cache"`
	CacheTTL      time.Duration `yaml:"cache_ttl,omitempty" json:"cache_ttl,omitempty" mapstructure:"cache_ttl" validate:"required_if=EnableCache true,gte=0"`
	Timeout       time.Duration `yaml:"timeout,omitempty" json:"timeout,omitempty" mapstructure:"timeout" validate:"gte=0"`
	ErrorStrategy string        `yaml:"error_strategy,omitempty" json:"error_strategy,omitempty" mapstructure:"error_strategy"`
	Stages        []string      `yaml:"stages" json:"stages" mapstructure:"stages" validate:"min=1,dive,required"`
}

// document is the multi-pipeline file layout.
type document struct {
	Pipelines []Definition `yaml:"pipelines"`
}

var (
	validate *validator.Validate
	once     sync.Once
)

func getValidator() *validator.Validate {
	once.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())

		// Report yaml tag names in errors
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
			if name == "-" || name == "" {
				return fld.Name
			}
			return name
		})
	})
	return validate
}

// Validate checks the definition's fields, including the error strategy name.
func (d Definition) Validate() error {
	if err := getValidator().Struct(d); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return err
		}
		errs := make([]error, 0, len(fieldErrs))
		for _, fe := range fieldErrs {
			errs = append(errs, gferrors.NewValidationError(module, fe.Field(), fe.Value(), formatFieldError(fe)))
		}
		return errors.Join(errs...)
	}
	if _, err := pipeline.ParseErrorStrategy(d.ErrorStrategy); err != nil {
		return err
	}
	return nil
}

func formatFieldError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "required_if":
		return "is required when " + strings.ToLower(fe.Param())
	case "min":
		return "must have at least " + fe.Param() + " entries"
	case "gte":
		return "cannot be negative"
	default:
		return "is invalid"
	}
}

// Config converts the definition to a validated pipeline.Config.
func (d Definition) Config() (pipeline.Config, error) {
	strategy, err := pipeline.ParseErrorStrategy(d.ErrorStrategy)
	if err != nil {
		return pipeline.Config{}, err
	}
	cfg := pipeline.Config{
		ID:            d.ID,
		Name:          d.Name,
		Description:   d.Description,
		EnableCache:   d.EnableCache,
		CacheTTL:      d.CacheTTL,
		Timeout:       d.Timeout,
		ErrorStrategy: strategy,
	}
	if err := cfg.Validate(); err != nil {
		return pipeline.Config{}, err
	}
	return cfg, nil
}

// Parse decodes one definition, or a list under a pipelines key, from YAML
// or JSON. Unknown fields are rejected and every definition is validated.
func Parse(data []byte) ([]Definition, error) {
	var probe map[string]interface{}
	if err := yaml.Unmarshal(data, &probe); err != nil {
		return nil, gferrors.NewOperationError(module, "parse", err)
	}

	var defs []Definition
	if _, multi := probe["pipelines"]; multi {
		var doc document
		if err := decodeStrict(data, &doc); err != nil {
			return nil, err
		}
		defs = doc.Pipelines
	} else {
		var def Definition
		if err := decodeStrict(data, &def); err != nil {
			return nil, err
		}
		defs = []Definition{def}
	}

	for i, def := range defs {
		if err := def.Validate(); err != nil {
			return nil, fmt.Errorf("pipeline %d (%q): %w", i, def.ID, err)
		}
	}
	return defs, nil
}

func decodeStrict(data []byte, out interface{}) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return gferrors.NewOperationError(module, "parse", err)
	}
	return nil
}

// LoadFile reads a single definition from a YAML, JSON or TOML file. When
// envPrefix is set, environment variables named <PREFIX>_<FIELD> override
// the file, e.g. FLOWPIPE_TIMEOUT=3s or FLOWPIPE_ERROR_STRATEGY=retry.
func LoadFile(path, envPrefix string) (Definition, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return Definition{}, gferrors.NewOperationError(module, "load", err).WithContext(path)
	}

	if envPrefix != "" {
		v.SetEnvPrefix(envPrefix)
		v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
		for _, key := range []string{"id", "name", "description", "enable_cache", "cache_ttl", "timeout", "error_strategy"} {
			if err := v.BindEnv(key); err != nil {
				return Definition{}, gferrors.NewOperationError(module, "bind env", err).WithContext(key)
			}
		}
	}

	var def Definition
	if err := v.Unmarshal(&def); err != nil {
		return Definition{}, gferrors.NewOperationError(module, "decode", err).WithContext(path)
	}
	if err := def.Validate(); err != nil {
		return Definition{}, err
	}
	return def, nil
}

// Build creates an engine for def from the factory's registered stages.
// Unknown stage names fail with *pipeline.UnknownStageError.
func Build(factory *pipeline.Factory, def Definition) (pipeline.Pipeline, error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}
	cfg, err := def.Config()
	if err != nil {
		return nil, err
	}
	return factory.CreateFromStages(cfg, def.Stages...)
}

// BuildAll builds every definition, keyed by ID. IDs must be unique.
func BuildAll(factory *pipeline.Factory, defs []Definition) (map[string]pipeline.Pipeline, error) {
	out := make(map[string]pipeline.Pipeline, len(defs))
	for _, def := range defs {
		if _, dup := out[def.ID]; dup {
			return nil, fmt.Errorf("pipeline %q: %w", def.ID, gferrors.ErrAlreadyExists)
		}
		p, err := Build(factory, def)
		if err != nil {
			return nil, fmt.Errorf("pipeline %q: %w", def.ID, err)
		}
		out[def.ID] = p
	}
	return out, nil
}
