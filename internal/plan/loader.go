package plan

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// planFile is the YAML schema of a declarative plan definition.
type planFile struct {
	Module  string      `yaml:"module"`
	Futures []futureDef `yaml:"futures"`
}

type futureDef struct {
	Name     string         `yaml:"name"`
	Type     string         `yaml:"type"`
	Contract string         `yaml:"contract"`
	Function string         `yaml:"function"`
	Args     []any          `yaml:"args"`
	Value    any            `yaml:"value"`
	From     any            `yaml:"from"`
	To       any            `yaml:"to"`
	Data     any            `yaml:"data"`
	Address  any            `yaml:"address"`
	Output   string         `yaml:"output"`
	Event    string         `yaml:"event"`
	Argument string         `yaml:"argument"`
	Index    int            `yaml:"index"`
	ReadFrom string         `yaml:"read-from"`
	Emitter  string         `yaml:"emitter"`
	Libs     map[string]any `yaml:"libraries"`
	After    []string       `yaml:"after"`
}

// LoadFile reads a YAML plan definition and builds the plan. Future
// references use the "$name" form and must point at futures declared earlier
// in the file.
func LoadFile(path string) (*Plan, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read plan file: %w", err)
	}

	var file planFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("failed to parse plan file %s: %w", path, err)
	}
	if file.Module == "" {
		return nil, fmt.Errorf("plan file %s does not name a module", path)
	}

	return NewBuilder().Module(file.Module, func(m *ModuleBuilder) error {
		byName := map[string]Future{}
		for _, def := range file.Futures {
			f, err := buildFuture(m, file.Module, def, byName)
			if err != nil {
				return fmt.Errorf("future %q: %w", def.Name, err)
			}
			byName[def.Name] = f
		}
		return nil
	})
}

func buildFuture(m *ModuleBuilder, moduleID string, def futureDef, byName map[string]Future) (Future, error) {
	if def.Name == "" {
		return nil, fmt.Errorf("missing name")
	}

	resolve := func(value any) (any, error) { return resolveRefs(value, byName, moduleID) }

	var opts []Option
	opts = append(opts, WithID(def.Name))
	if def.From != nil {
		from, err := resolve(def.From)
		if err != nil {
			return nil, err
		}
		opts = append(opts, WithFrom(from))
	}
	if def.Value != nil {
		value, err := resolve(def.Value)
		if err != nil {
			return nil, err
		}
		opts = append(opts, WithValue(value))
	}
	if len(def.Libs) > 0 {
		libraries := make(map[string]Future, len(def.Libs))
		for name, ref := range def.Libs {
			resolved, err := resolve(ref)
			if err != nil {
				return nil, err
			}
			f, ok := resolved.(Future)
			if !ok {
				return nil, fmt.Errorf("library %q must reference a future", name)
			}
			libraries[name] = f
		}
		opts = append(opts, WithLibraries(libraries))
	}
	if len(def.After) > 0 {
		after := make([]Future, len(def.After))
		for i, name := range def.After {
			f, ok := byName[name]
			if !ok {
				return nil, fmt.Errorf("unknown future %q in after clause", name)
			}
			after[i] = f
		}
		opts = append(opts, After(after...))
	}

	args, err := resolve(normalizeYAML(def.Args))
	if err != nil {
		return nil, err
	}
	argList, _ := args.([]any)

	switch def.Type {
	case "contract":
		return m.Contract(def.Contract, argList, opts...), nil

	case "library":
		return m.Library(def.Contract, opts...), nil

	case "call":
		target, err := futureRef(def.Contract, byName)
		if err != nil {
			return nil, err
		}
		return m.Call(target, def.Function, argList, opts...), nil

	case "static-call":
		target, err := futureRef(def.Contract, byName)
		if err != nil {
			return nil, err
		}
		output := def.Output
		if output == "" {
			output = "0"
		}
		return m.StaticCall(target, def.Function, argList, output, opts...), nil

	case "encode-call":
		target, err := futureRef(def.Contract, byName)
		if err != nil {
			return nil, err
		}
		return m.EncodeCall(target, def.Function, argList, opts...), nil

	case "contract-at":
		address, err := resolve(normalizeYAML(def.Address))
		if err != nil {
			return nil, err
		}
		return m.ContractAt(def.Contract, address, opts...), nil

	case "read-event":
		readFrom, err := futureRef(def.ReadFrom, byName)
		if err != nil {
			return nil, err
		}
		emitter := readFrom
		if def.Emitter != "" {
			if emitter, err = futureRef(def.Emitter, byName); err != nil {
				return nil, err
			}
		}
		argument := def.Argument
		if argument == "" {
			argument = "0"
		}
		return m.ReadEvent(readFrom, emitter, def.Event, argument, def.Index, opts...), nil

	case "send":
		to, err := resolve(normalizeYAML(def.To))
		if err != nil {
			return nil, err
		}
		data, err := resolve(normalizeYAML(def.Data))
		if err != nil {
			return nil, err
		}
		var value any
		if def.Value != nil {
			if value, err = resolve(def.Value); err != nil {
				return nil, err
			}
		}
		return m.Send(def.Name, to, value, data, opts...), nil

	default:
		return nil, fmt.Errorf("unknown future type %q", def.Type)
	}
}

// futureRef resolves a bare or $-prefixed reference to a declared future.
func futureRef(ref string, byName map[string]Future) (Future, error) {
	name := strings.TrimPrefix(ref, "$")
	if name == "" {
		return nil, fmt.Errorf("missing future reference")
	}
	f, ok := byName[name]
	if !ok {
		return nil, fmt.Errorf("unknown future %q (forward references are not allowed)", name)
	}
	return f, nil
}

// resolveRefs rewrites the loader-level placeholder syntax into plan values:
// "$name" strings become future references, {account: i} and {param: name}
// maps become runtime values.
func resolveRefs(value any, byName map[string]Future, moduleID string) (any, error) {
	switch v := value.(type) {
	case string:
		if strings.HasPrefix(v, "$") {
			return futureRef(v, byName)
		}
		return v, nil

	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			resolved, err := resolveRefs(item, byName, moduleID)
			if err != nil {
				return nil, err
			}
			out[i] = resolved
		}
		return out, nil

	case map[string]any:
		if index, ok := v["account"]; ok && len(v) == 1 {
			i, err := yamlInt(index)
			if err != nil {
				return nil, fmt.Errorf("account reference: %w", err)
			}
			return AccountValue{Index: i}, nil
		}
		if name, ok := v["param"]; ok {
			paramName, isString := name.(string)
			if !isString {
				return nil, fmt.Errorf("param reference must name the parameter")
			}
			return ParamValue{ModuleID: moduleID, Name: paramName, Default: v["default"]}, nil
		}

		out := make(map[string]any, len(v))
		for key, item := range v {
			resolved, err := resolveRefs(item, byName, moduleID)
			if err != nil {
				return nil, err
			}
			out[key] = resolved
		}
		return out, nil

	default:
		return value, nil
	}
}

// normalizeYAML converts yaml.v3's map[any]any shapes into map[string]any so
// the rest of the pipeline sees one map type.
func normalizeYAML(value any) any {
	switch v := value.(type) {
	case map[any]any:
		out := make(map[string]any, len(v))
		for key, item := range v {
			out[fmt.Sprint(key)] = normalizeYAML(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, item := range v {
			out[key] = normalizeYAML(item)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = normalizeYAML(item)
		}
		return out
	default:
		return value
	}
}

func yamlInt(value any) (int, error) {
	switch v := value.(type) {
	case int:
		return v, nil
	case float64:
		return int(v), nil
	default:
		return 0, fmt.Errorf("expected an integer, got %T", value)
	}
}

// LoadParameters reads deployment parameters from a JSON or YAML file. The
// top level maps module ids to parameter name/value pairs.
func LoadParameters(path string) (DeploymentParameters, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read parameters file: %w", err)
	}

	params := DeploymentParameters{}
	switch ext := filepath.Ext(path); ext {
	case ".json":
		if err := json.Unmarshal(raw, &params); err != nil {
			return nil, fmt.Errorf("failed to parse parameters file %s: %w", path, err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(raw, &params); err != nil {
			return nil, fmt.Errorf("failed to parse parameters file %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("unsupported parameters file extension %q", ext)
	}

	for moduleID := range params {
		for name, value := range params[moduleID] {
			params[moduleID][name] = normalizeYAML(value)
		}
	}
	return params, nil
}
