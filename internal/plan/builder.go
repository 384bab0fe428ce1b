package plan

import (
	"fmt"
	"regexp"
)

var identifierPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Plan is an immutable dependency graph of futures for one module, plus the
// plans of any submodules it used.
type Plan struct {
	ModuleID   string
	Futures    []Future
	Submodules []*Plan

	byID map[string]Future
}

// Future returns the future with the given id, searching submodules too.
func (p *Plan) Future(id string) (Future, bool) {
	if f, ok := p.byID[id]; ok {
		return f, true
	}
	for _, sub := range p.Submodules {
		if f, ok := sub.Future(id); ok {
			return f, true
		}
	}
	return nil, false
}

// AllFutures returns every future of the plan and its submodules,
// submodules first, in construction order.
func (p *Plan) AllFutures() []Future {
	var out []Future
	for _, sub := range p.Submodules {
		out = append(out, sub.AllFutures()...)
	}
	return append(out, p.Futures...)
}

// Builder owns the module cache for the duration of one build. Repeated
// Module calls with the same id return the already-built plan, making
// submodule reuse idempotent without any process-global state.
type Builder struct {
	built map[string]*Plan
}

func NewBuilder() *Builder {
	return &Builder{built: map[string]*Plan{}}
}

// Module builds (or returns the cached) plan for the given module id.
func (b *Builder) Module(id string, define func(m *ModuleBuilder) error) (*Plan, error) {
	if !identifierPattern.MatchString(id) {
		return nil, fmt.Errorf("invalid module id %q: must be a valid identifier", id)
	}
	if cached, ok := b.built[id]; ok {
		return cached, nil
	}

	plan := &Plan{ModuleID: id, byID: map[string]Future{}}
	mb := &ModuleBuilder{builder: b, plan: plan}
	if err := define(mb); err != nil {
		return nil, fmt.Errorf("failed to build module %q: %w", id, err)
	}
	if mb.err != nil {
		return nil, fmt.Errorf("failed to build module %q: %w", id, mb.err)
	}

	if err := checkAcyclic(plan); err != nil {
		return nil, err
	}

	b.built[id] = plan
	return plan, nil
}

// ModuleBuilder collects futures for a single module. Construction errors are
// recorded and surfaced when the module build finishes, so call sites can
// chain declarations without per-call error handling.
type ModuleBuilder struct {
	builder *Builder
	plan    *Plan
	err     error
}

// FutureOptions carries the optional attributes shared by future kinds.
type FutureOptions struct {
	ID        string
	From      any
	Value     any
	Libraries map[string]Future
	After     []Future
}

type Option func(*FutureOptions)

func WithID(id string) Option                       { return func(o *FutureOptions) { o.ID = id } }
func WithFrom(from any) Option                      { return func(o *FutureOptions) { o.From = from } }
func WithValue(value any) Option                    { return func(o *FutureOptions) { o.Value = value } }
func WithLibraries(libs map[string]Future) Option   { return func(o *FutureOptions) { o.Libraries = libs } }
func After(futures ...Future) Option                { return func(o *FutureOptions) { o.After = futures } }

func applyOptions(opts []Option) FutureOptions {
	var options FutureOptions
	for _, opt := range opts {
		opt(&options)
	}
	return options
}

// UseModule builds a submodule through the shared builder cache and records it
// on the current plan.
func (m *ModuleBuilder) UseModule(id string, define func(sub *ModuleBuilder) error) *Plan {
	sub, err := m.builder.Module(id, define)
	if err != nil {
		m.fail(err)
		return &Plan{ModuleID: id, byID: map[string]Future{}}
	}
	for _, existing := range m.plan.Submodules {
		if existing.ModuleID == id {
			return sub
		}
	}
	m.plan.Submodules = append(m.plan.Submodules, sub)
	return sub
}

// Account references the node account at the given index.
func (m *ModuleBuilder) Account(index int) AccountValue {
	if index < 0 {
		m.fail(fmt.Errorf("account index must not be negative, got %d", index))
	}
	return AccountValue{Index: index}
}

// Param references a deployment parameter of this module.
func (m *ModuleBuilder) Param(name string, defaultValue ...any) ParamValue {
	p := ParamValue{ModuleID: m.plan.ModuleID, Name: name}
	if len(defaultValue) > 0 {
		p.Default = defaultValue[0]
	}
	return p
}

// Contract declares a contract deployment future.
func (m *ModuleBuilder) Contract(contractName string, args []any, opts ...Option) *ContractDeployment {
	options := applyOptions(opts)
	f := &ContractDeployment{
		ContractName: contractName,
		Args:         args,
		Libraries:    options.Libraries,
		Value:        options.Value,
		From:         options.From,
	}
	m.register(f, &f.baseFuture, FutureTypeContractDeployment, contractName, options)
	f.addValueDependencies(args)
	f.addValueDependencies(options.Value)
	for _, lib := range options.Libraries {
		f.addDependency(lib)
	}
	return f
}

// Library declares a library deployment future.
func (m *ModuleBuilder) Library(libraryName string, opts ...Option) *LibraryDeployment {
	options := applyOptions(opts)
	f := &LibraryDeployment{
		ContractName: libraryName,
		Libraries:    options.Libraries,
		From:         options.From,
	}
	m.register(f, &f.baseFuture, FutureTypeLibraryDeployment, libraryName, options)
	for _, lib := range options.Libraries {
		f.addDependency(lib)
	}
	return f
}

// Call declares a state-mutating contract call future.
func (m *ModuleBuilder) Call(contract Future, functionName string, args []any, opts ...Option) *ContractCall {
	options := applyOptions(opts)
	f := &ContractCall{
		Contract:     contract,
		FunctionName: functionName,
		Args:         args,
		Value:        options.Value,
		From:         options.From,
	}
	m.register(f, &f.baseFuture, FutureTypeContractCall, callLabel(contract, functionName), options)
	f.addDependency(contract)
	f.addValueDependencies(args)
	f.addValueDependencies(options.Value)
	return f
}

// StaticCall declares a read-only contract call future. nameOrIndex selects
// which output to keep ("0" by default).
func (m *ModuleBuilder) StaticCall(contract Future, functionName string, args []any, nameOrIndex string, opts ...Option) *StaticCall {
	options := applyOptions(opts)
	if nameOrIndex == "" {
		nameOrIndex = "0"
	}
	f := &StaticCall{
		Contract:     contract,
		FunctionName: functionName,
		Args:         args,
		NameOrIndex:  nameOrIndex,
		From:         options.From,
	}
	m.register(f, &f.baseFuture, FutureTypeStaticCall, callLabel(contract, functionName), options)
	f.addDependency(contract)
	f.addValueDependencies(args)
	return f
}

// EncodeCall declares a calldata-encoding future; it never touches the network.
func (m *ModuleBuilder) EncodeCall(contract Future, functionName string, args []any, opts ...Option) *EncodeFunctionCall {
	options := applyOptions(opts)
	f := &EncodeFunctionCall{
		Contract:     contract,
		FunctionName: functionName,
		Args:         args,
	}
	m.register(f, &f.baseFuture, FutureTypeEncodeFunctionCall, "encode_"+callLabel(contract, functionName), options)
	f.addDependency(contract)
	f.addValueDependencies(args)
	return f
}

// ContractAt declares a binding of a contract name to an existing address.
func (m *ModuleBuilder) ContractAt(contractName string, address any, opts ...Option) *ContractAt {
	options := applyOptions(opts)
	f := &ContractAt{
		ContractName: contractName,
		Address:      address,
	}
	m.register(f, &f.baseFuture, FutureTypeContractAt, contractName, options)
	f.addValueDependencies(address)
	return f
}

// ReadEvent declares a future reading one event argument out of the
// transaction of a prior deployment, call, or send.
func (m *ModuleBuilder) ReadEvent(readFrom Future, emitter Future, eventName, nameOrIndex string, eventIndex int, opts ...Option) *ReadEventArgument {
	options := applyOptions(opts)
	if emitter == nil {
		emitter = readFrom
	}
	f := &ReadEventArgument{
		ReadFrom:    readFrom,
		Emitter:     emitter,
		EventName:   eventName,
		NameOrIndex: nameOrIndex,
		EventIndex:  eventIndex,
	}
	m.register(f, &f.baseFuture, FutureTypeReadEventArgument, fmt.Sprintf("read_%s_%s", eventName, nameOrIndex), options)
	f.addDependency(readFrom)
	f.addDependency(emitter)
	return f
}

// Send declares a raw transaction future.
func (m *ModuleBuilder) Send(name string, to any, value any, data any, opts ...Option) *SendData {
	options := applyOptions(opts)
	f := &SendData{
		To:    to,
		Data:  data,
		Value: value,
		From:  options.From,
	}
	m.register(f, &f.baseFuture, FutureTypeSendData, name, options)
	f.addValueDependencies(to)
	f.addValueDependencies(data)
	f.addValueDependencies(value)
	return f
}

func (m *ModuleBuilder) register(self Future, base *baseFuture, futType FutureType, label string, options FutureOptions) {
	name := options.ID
	if name == "" {
		name = label
	}
	if !identifierPattern.MatchString(name) {
		m.fail(fmt.Errorf("invalid future id %q in module %q: must be a valid identifier", name, m.plan.ModuleID))
	}

	base.id = m.plan.ModuleID + "#" + name
	base.futType = futType
	base.moduleID = m.plan.ModuleID

	if _, exists := m.plan.byID[base.id]; exists {
		m.fail(fmt.Errorf("duplicate future id %q: pass WithID to disambiguate", base.id))
	}

	for _, dep := range options.After {
		base.addDependency(dep)
	}

	m.plan.byID[base.id] = self
	m.plan.Futures = append(m.plan.Futures, self)
}

func (m *ModuleBuilder) fail(err error) {
	if m.err == nil {
		m.err = err
	}
}

func callLabel(contract Future, functionName string) string {
	if c, ok := contract.(*ContractDeployment); ok {
		return c.ContractName + "_" + functionName
	}
	if c, ok := contract.(*ContractAt); ok {
		return c.ContractName + "_" + functionName
	}
	if c, ok := contract.(*LibraryDeployment); ok {
		return c.ContractName + "_" + functionName
	}
	return functionName
}

// checkAcyclic rejects dependency cycles. The builder API makes cycles hard
// to express, but a plan is rejected here rather than hanging the batcher.
func checkAcyclic(p *Plan) error {
	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := map[string]int{}

	var visit func(f Future) error
	visit = func(f Future) error {
		switch state[f.ID()] {
		case done:
			return nil
		case visiting:
			return fmt.Errorf("dependency cycle detected through future %q", f.ID())
		}
		state[f.ID()] = visiting
		for _, dep := range f.Dependencies() {
			if err := visit(dep); err != nil {
				return err
			}
		}
		state[f.ID()] = done
		return nil
	}

	for _, f := range p.AllFutures() {
		if err := visit(f); err != nil {
			return err
		}
	}
	return nil
}
