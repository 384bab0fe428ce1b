package plan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilderFutureIDs(t *testing.T) {
	p, err := NewBuilder().Module("Tokens", func(m *ModuleBuilder) error {
		token := m.Contract("Token", []any{"My Token", "TKN"})
		m.Call(token, "transfer", []any{m.Account(1), "100"})
		m.StaticCall(token, "balanceOf", []any{m.Account(1)}, "")
		return nil
	})
	require.NoError(t, err)

	require.Len(t, p.Futures, 3)
	assert.Equal(t, "Tokens#Token", p.Futures[0].ID())
	assert.Equal(t, "Tokens#Token_transfer", p.Futures[1].ID())
	assert.Equal(t, "Tokens#Token_balanceOf", p.Futures[2].ID())

	f, ok := p.Future("Tokens#Token")
	require.True(t, ok)
	assert.Equal(t, FutureTypeContractDeployment, f.Type())

	_, ok = p.Future("Tokens#Missing")
	assert.False(t, ok)
}

func TestBuilderDuplicateIDRejected(t *testing.T) {
	_, err := NewBuilder().Module("Dup", func(m *ModuleBuilder) error {
		token := m.Contract("Token", nil)
		m.Call(token, "init", nil)
		m.Call(token, "init", nil)
		return nil
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `duplicate future id "Dup#Token_init"`)
	assert.Contains(t, err.Error(), "WithID")
}

func TestBuilderWithIDDisambiguates(t *testing.T) {
	p, err := NewBuilder().Module("Dup", func(m *ModuleBuilder) error {
		token := m.Contract("Token", nil)
		m.Call(token, "init", nil, WithID("first_init"))
		m.Call(token, "init", nil, WithID("second_init"))
		return nil
	})
	require.NoError(t, err)

	_, ok := p.Future("Dup#first_init")
	assert.True(t, ok)
	_, ok = p.Future("Dup#second_init")
	assert.True(t, ok)
}

func TestBuilderInvalidIdentifiers(t *testing.T) {
	_, err := NewBuilder().Module("bad id", func(m *ModuleBuilder) error { return nil })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be a valid identifier")

	_, err = NewBuilder().Module("Mod", func(m *ModuleBuilder) error {
		m.Contract("Token", nil, WithID("not-valid"))
		return nil
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `invalid future id "not-valid"`)
}

func TestBuilderDependencyCollection(t *testing.T) {
	p, err := NewBuilder().Module("Deps", func(m *ModuleBuilder) error {
		math := m.Library("SafeMath")
		token := m.Contract("Token", nil, WithLibraries(map[string]Future{"SafeMath": math}))
		vault := m.Contract("Vault", []any{token}, WithValue(token), After(math))
		m.Send("fund", vault, "1000", nil)
		return nil
	})
	require.NoError(t, err)

	vault, ok := p.Future("Deps#Vault")
	require.True(t, ok)
	depIDs := map[string]bool{}
	for _, dep := range vault.Dependencies() {
		depIDs[dep.ID()] = true
	}
	assert.True(t, depIDs["Deps#Token"], "argument dependency missing")
	assert.True(t, depIDs["Deps#SafeMath"], "After dependency missing")
	// Token appears both as arg and as value but is recorded once.
	assert.Len(t, vault.Dependencies(), 2)

	token, _ := p.Future("Deps#Token")
	require.Len(t, token.Dependencies(), 1)
	assert.Equal(t, "Deps#SafeMath", token.Dependencies()[0].ID())

	send, _ := p.Future("Deps#fund")
	require.Len(t, send.Dependencies(), 1)
	assert.Equal(t, "Deps#Vault", send.Dependencies()[0].ID())
}

func TestBuilderNestedValueDependencies(t *testing.T) {
	p, err := NewBuilder().Module("Nested", func(m *ModuleBuilder) error {
		a := m.Contract("A", nil)
		b := m.Contract("B", nil)
		m.Contract("C", []any{[]any{a}, map[string]any{"inner": b}})
		return nil
	})
	require.NoError(t, err)

	c, ok := p.Future("Nested#C")
	require.True(t, ok)
	assert.Len(t, c.Dependencies(), 2)
}

func TestBuilderReadEventDefaultsEmitter(t *testing.T) {
	p, err := NewBuilder().Module("Events", func(m *ModuleBuilder) error {
		factory := m.Contract("Factory", nil)
		create := m.Call(factory, "create", nil)
		m.ReadEvent(create, nil, "Created", "instance", 0)
		return nil
	})
	require.NoError(t, err)

	f, ok := p.Future("Events#read_Created_instance")
	require.True(t, ok)
	read, ok := f.(*ReadEventArgument)
	require.True(t, ok)
	assert.Same(t, read.ReadFrom, read.Emitter)
}

func TestBuilderStaticCallDefaultOutput(t *testing.T) {
	p, err := NewBuilder().Module("Static", func(m *ModuleBuilder) error {
		token := m.Contract("Token", nil)
		m.StaticCall(token, "totalSupply", nil, "")
		return nil
	})
	require.NoError(t, err)

	f, _ := p.Future("Static#Token_totalSupply")
	static, ok := f.(*StaticCall)
	require.True(t, ok)
	assert.Equal(t, "0", static.NameOrIndex)
}

func TestBuilderNegativeAccountIndex(t *testing.T) {
	_, err := NewBuilder().Module("Accounts", func(m *ModuleBuilder) error {
		m.Contract("Token", []any{m.Account(-1)})
		return nil
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "account index must not be negative")
}

func TestBuilderSubmoduleCaching(t *testing.T) {
	defineShared := func(sub *ModuleBuilder) error {
		sub.Contract("Registry", nil)
		return nil
	}

	b := NewBuilder()
	p, err := b.Module("Top", func(m *ModuleBuilder) error {
		first := m.UseModule("Shared", defineShared)
		second := m.UseModule("Shared", defineShared)
		assert.Same(t, first, second)
		return nil
	})
	require.NoError(t, err)

	require.Len(t, p.Submodules, 1)
	assert.Equal(t, "Shared", p.Submodules[0].ModuleID)

	_, ok := p.Future("Shared#Registry")
	assert.True(t, ok, "submodule futures reachable from the parent plan")

	all := p.AllFutures()
	require.Len(t, all, 1)
	assert.Equal(t, "Shared#Registry", all[0].ID())
}

func TestBuilderAllFuturesSubmodulesFirst(t *testing.T) {
	p, err := NewBuilder().Module("Top", func(m *ModuleBuilder) error {
		sub := m.UseModule("Base", func(sub *ModuleBuilder) error {
			sub.Contract("Registry", nil)
			return nil
		})
		registry, ok := sub.Future("Base#Registry")
		require.True(t, ok)
		m.Contract("App", []any{registry})
		return nil
	})
	require.NoError(t, err)

	all := p.AllFutures()
	require.Len(t, all, 2)
	assert.Equal(t, "Base#Registry", all[0].ID())
	assert.Equal(t, "Top#App", all[1].ID())
}

func TestCheckAcyclicRejectsCycle(t *testing.T) {
	// The builder API cannot express a cycle, so wire one by hand.
	a := &ContractDeployment{ContractName: "A"}
	a.baseFuture = baseFuture{id: "M#A", futType: FutureTypeContractDeployment, moduleID: "M"}
	b := &ContractDeployment{ContractName: "B"}
	b.baseFuture = baseFuture{id: "M#B", futType: FutureTypeContractDeployment, moduleID: "M"}
	a.addDependency(b)
	b.addDependency(a)

	p := &Plan{
		ModuleID: "M",
		Futures:  []Future{a, b},
		byID:     map[string]Future{"M#A": a, "M#B": b},
	}

	err := checkAcyclic(p)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dependency cycle detected")
}
