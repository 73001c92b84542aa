package module_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nmxmxh/fimod/internal/fimoerr"
	"github.com/nmxmxh/fimod/internal/fimoexec"
	"github.com/nmxmxh/fimod/internal/fimolog"
	"github.com/nmxmxh/fimod/internal/fimover"
	"github.com/nmxmxh/fimod/internal/module"
	"github.com/nmxmxh/fimod/internal/module/fixture"
	"github.com/nmxmxh/fimod/internal/param"
	"github.com/nmxmxh/fimod/internal/wasmhost"
)

// emptyWasmModule is the minimal valid WASM binary: the 8-byte magic and
// version header, no sections, no imports or exports.
var emptyWasmModule = []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}

var runtimeV1 = fimover.New(1, 0, 0)

func newRegistry() *module.Registry {
	return module.New(runtimeV1, fimolog.Noop{})
}

func commitAndWait(t *testing.T, set *module.LoadingSet) *module.CommitResult {
	t.Helper()
	h := set.Commit(context.Background())
	return h.Wait()
}

// Scenario 1: single-module load and unload.
func TestSingleModuleLoadAndUnload(t *testing.T) {
	reg := newRegistry()
	set := module.NewSet(reg)

	desc := fixture.NewDescriptor("alpha", runtimeV1).
		Describe("alpha module", "tester", "MIT").
		Export("greet", fimover.New(1, 0, 0), "hello").
		Build()
	require.NoError(t, set.AddModule(nil, desc))

	result := commitAndWait(t, set)
	assert.Equal(t, []string{"alpha"}, result.Published)
	assert.Empty(t, result.Skipped)

	inst, err := reg.FindByName("alpha")
	require.NoError(t, err)
	assert.Equal(t, module.Live, inst.Info().State())

	_, payload, err := reg.FindBySymbol(fimover.SymbolKey{Name: "greet", Version: fimover.New(1, 0, 0)})
	require.NoError(t, err)
	assert.Equal(t, "hello", payload)

	inst.Info().MarkUnloadable()
	require.NoError(t, reg.PruneInstances())
	assert.Equal(t, module.Dead, inst.Info().State())
	_, err = reg.FindByName("alpha")
	assert.True(t, errorKindIs(err, fimoerr.NotFound))
}

// Scenario 2: import resolution across two modules in the same commit.
func TestImportResolutionWithinSet(t *testing.T) {
	reg := newRegistry()
	set := module.NewSet(reg)

	provider := fixture.NewDescriptor("provider", runtimeV1).
		Export("value", fimover.New(1, 0, 0), 42).
		Build()
	consumer := fixture.NewDescriptor("consumer", runtimeV1).
		Import("value", fimover.New(1, 0, 0)).
		Build()

	require.NoError(t, set.AddModule(nil, provider))
	require.NoError(t, set.AddModule(nil, consumer))

	result := commitAndWait(t, set)
	assert.ElementsMatch(t, []string{"provider", "consumer"}, result.Published)
	assert.Empty(t, result.Skipped)

	consumerInst, err := reg.FindByName("consumer")
	require.NoError(t, err)
	providerInst, err := reg.FindByName("provider")
	require.NoError(t, err)

	payload, err := consumerInst.LoadSymbol(fimover.SymbolKey{Name: "value", Version: fimover.New(1, 0, 0)})
	require.NoError(t, err)
	assert.Equal(t, 42, payload)

	exists, static := consumerInst.QueryDependency(providerInst)
	assert.True(t, exists)
	assert.True(t, static)
}

// Scenario 3: an import that cannot be satisfied by any available
// version is skipped, not fatal to the rest of the commit.
func TestVersionIncompatibleImportIsSkipped(t *testing.T) {
	reg := newRegistry()
	set := module.NewSet(reg)

	provider := fixture.NewDescriptor("provider", runtimeV1).
		Export("value", fimover.New(1, 0, 0), 1).
		Build()
	consumer := fixture.NewDescriptor("consumer", runtimeV1).
		Import("value", fimover.New(2, 0, 0)).
		Build()

	require.NoError(t, set.AddModule(nil, provider))
	require.NoError(t, set.AddModule(nil, consumer))

	result := commitAndWait(t, set)
	assert.Equal(t, []string{"provider"}, result.Published)
	require.Contains(t, result.Skipped, "consumer")
	assert.True(t, errorKindIs(result.Skipped["consumer"], fimoerr.VersionIncompatible))
}

// Scenario 4: a dependency cycle within one set skips every module in
// the cycle, without affecting unrelated modules in the same commit.
func TestImportCycleIsSkipped(t *testing.T) {
	reg := newRegistry()
	set := module.NewSet(reg)

	a := fixture.NewDescriptor("a", runtimeV1).
		Import("b_sym", fimover.New(1, 0, 0)).
		Export("a_sym", fimover.New(1, 0, 0), "a").
		Build()
	b := fixture.NewDescriptor("b", runtimeV1).
		Import("a_sym", fimover.New(1, 0, 0)).
		Export("b_sym", fimover.New(1, 0, 0), "b").
		Build()
	standalone := fixture.NewDescriptor("standalone", runtimeV1).
		Export("standalone_sym", fimover.New(1, 0, 0), "s").
		Build()

	require.NoError(t, set.AddModule(nil, a))
	require.NoError(t, set.AddModule(nil, b))
	require.NoError(t, set.AddModule(nil, standalone))

	result := commitAndWait(t, set)
	assert.Equal(t, []string{"standalone"}, result.Published)
	require.Contains(t, result.Skipped, "a")
	require.Contains(t, result.Skipped, "b")
	assert.True(t, errorKindIs(result.Skipped["a"], fimoerr.WouldCycle))
	assert.True(t, errorKindIs(result.Skipped["b"], fimoerr.WouldCycle))
}

// Scenario 5: dynamic dependency edges can be added, removed and re-added
// after load, and adding the same edge twice fails with AlreadyPresent.
func TestDynamicDependencyAddRemove(t *testing.T) {
	reg := newRegistry()
	set := module.NewSet(reg)

	base := fixture.NewDescriptor("base", runtimeV1).
		Export("base_sym", fimover.New(1, 0, 0), "b").
		Build()
	leaf := fixture.NewDescriptor("leaf", runtimeV1).Build()

	require.NoError(t, set.AddModule(nil, base))
	require.NoError(t, set.AddModule(nil, leaf))
	result := commitAndWait(t, set)
	require.ElementsMatch(t, []string{"base", "leaf"}, result.Published)

	baseInst, err := reg.FindByName("base")
	require.NoError(t, err)
	leafInst, err := reg.FindByName("leaf")
	require.NoError(t, err)

	require.NoError(t, leafInst.AddDependency(baseInst))
	exists, static := leafInst.QueryDependency(baseInst)
	assert.True(t, exists)
	assert.False(t, static)

	require.NoError(t, leafInst.RemoveDependency(baseInst))
	exists, _ = leafInst.QueryDependency(baseInst)
	assert.False(t, exists)

	// A second AddDependency re-adding the same edge must succeed again.
	require.NoError(t, leafInst.AddDependency(baseInst))
	err = leafInst.AddDependency(baseInst)
	assert.True(t, errorKindIs(err, fimoerr.AlreadyPresent))
}

// AddDependency must reject an edge that would create a cycle.
func TestAddDependencyRejectsCycle(t *testing.T) {
	reg := newRegistry()
	set := module.NewSet(reg)
	a := fixture.NewDescriptor("cyc_a", runtimeV1).Build()
	b := fixture.NewDescriptor("cyc_b", runtimeV1).Build()
	require.NoError(t, set.AddModule(nil, a))
	require.NoError(t, set.AddModule(nil, b))
	result := commitAndWait(t, set)
	require.ElementsMatch(t, []string{"cyc_a", "cyc_b"}, result.Published)

	instA, _ := reg.FindByName("cyc_a")
	instB, _ := reg.FindByName("cyc_b")
	require.NoError(t, instA.AddDependency(instB))
	err := instB.AddDependency(instA)
	assert.True(t, errorKindIs(err, fimoerr.WouldCycle))
}

// Scenario 6: parameter access control honors the three-tier matrix
// across Owner/Dependent/Other relations.
func TestParameterAccessControl(t *testing.T) {
	reg := newRegistry()
	set := module.NewSet(reg)

	owner := fixture.NewDescriptor("owner", runtimeV1).
		Param("level", param.U8, param.Dependency, param.Private, param.U8Value(1)).
		Export("owner_sym", fimover.New(1, 0, 0), "o").
		Build()
	dependent := fixture.NewDescriptor("dependent", runtimeV1).
		Import("owner_sym", fimover.New(1, 0, 0)).
		Build()
	stranger := fixture.NewDescriptor("stranger", runtimeV1).Build()

	require.NoError(t, set.AddModule(nil, owner))
	require.NoError(t, set.AddModule(nil, dependent))
	require.NoError(t, set.AddModule(nil, stranger))
	result := commitAndWait(t, set)
	require.ElementsMatch(t, []string{"owner", "dependent", "stranger"}, result.Published)

	ownerInst, _ := reg.FindByName("owner")
	dependentInst, _ := reg.FindByName("dependent")
	strangerInst, _ := reg.FindByName("stranger")

	v, err := ownerInst.ReadParam(ownerInst, "level", param.U8)
	require.NoError(t, err)
	assert.Equal(t, uint8(1), v.U8())

	v, err = ownerInst.ReadParam(dependentInst, "level", param.U8)
	require.NoError(t, err)
	assert.Equal(t, uint8(1), v.U8())

	_, err = ownerInst.ReadParam(strangerInst, "level", param.U8)
	assert.True(t, errorKindIs(err, fimoerr.AccessDenied))

	err = ownerInst.WriteParam(dependentInst, "level", param.U8Value(2))
	assert.True(t, errorKindIs(err, fimoerr.AccessDenied))

	require.NoError(t, ownerInst.WriteParam(ownerInst, "level", param.U8Value(9)))
	v, err = ownerInst.ReadParam(ownerInst, "level", param.U8)
	require.NoError(t, err)
	assert.Equal(t, uint8(9), v.U8())
}

// A commit with zero viable modules is a no-op success, not an error.
func TestEmptyCommitIsNoop(t *testing.T) {
	reg := newRegistry()
	set := module.NewSet(reg)
	result := commitAndWait(t, set)
	assert.Empty(t, result.Published)
	assert.Empty(t, result.Skipped)
}

// mark_unloadable is idempotent: a second call after the first does not
// error and does not re-queue the instance for prune twice.
func TestMarkUnloadableIdempotent(t *testing.T) {
	reg := newRegistry()
	set := module.NewSet(reg)
	desc := fixture.NewDescriptor("solo", runtimeV1).Build()
	require.NoError(t, set.AddModule(nil, desc))
	commitAndWait(t, set)

	inst, err := reg.FindByName("solo")
	require.NoError(t, err)
	inst.Info().MarkUnloadable()
	inst.Info().MarkUnloadable()
	assert.True(t, inst.Info().IsUnloadable())
	require.NoError(t, reg.PruneInstances())
	assert.Equal(t, module.Dead, inst.Info().State())
}

// Cancelling a commit's context once an earlier level has published
// leaves every already-published module from this commit published, and
// skips the rest with Cancelled.
func TestCommitCancellationLeavesPriorLevelsPublished(t *testing.T) {
	reg := newRegistry()
	set := module.NewSet(reg)

	base := fixture.NewDescriptor("cancel_base", runtimeV1).
		Export("cancel_sym", fimover.New(1, 0, 0), "v").
		Build()
	dependent := fixture.NewDescriptor("cancel_dependent", runtimeV1).
		Import("cancel_sym", fimover.New(1, 0, 0)).
		HangingDynamicExport("slow", fimover.New(1, 0, 0)).
		Build()

	require.NoError(t, set.AddModule(nil, base))
	require.NoError(t, set.AddModule(nil, dependent))

	ctx, cancel := context.WithCancel(context.Background())
	h := set.Commit(ctx)

	// Wait for cancel_base's own level to settle before cancelling, so the
	// cancellation is guaranteed to land on cancel_dependent's level and
	// not race doCommit's level-boundary check.
	poll := fimoexec.Block(set.PollModule("cancel_base"))
	require.False(t, poll.Skipped, "expected cancel_base to publish before cancellation")

	cancel()
	result := h.Wait()

	assert.Contains(t, result.Published, "cancel_base")
	if _, skipped := result.Skipped["cancel_dependent"]; !skipped {
		t.Fatalf("expected cancel_dependent to be skipped once ctx is cancelled, got published=%v skipped=%v", result.Published, result.Skipped)
	}

	_, err := reg.FindByName("cancel_base")
	assert.NoError(t, err)
}

// Root instance: not backed by a descriptor, not discoverable by name,
// but can own dependencies like any other Instance.
func TestRootInstanceOwnsDependencies(t *testing.T) {
	reg := newRegistry()
	set := module.NewSet(reg)
	desc := fixture.NewDescriptor("bootstrapped", runtimeV1).Build()
	require.NoError(t, set.AddModule(nil, desc))
	commitAndWait(t, set)

	bootstrapped, err := reg.FindByName("bootstrapped")
	require.NoError(t, err)

	root := reg.NewRoot()
	require.NoError(t, root.AddDependency(bootstrapped))
	exists, _ := root.QueryDependency(bootstrapped)
	assert.True(t, exists)

	_, err = reg.FindByName("root")
	assert.True(t, errorKindIs(err, fimoerr.NotFound))
}

// A module's InstanceState constructor can be backed by a real WASM guest
// instead of a closure over Go state; the guest instance it produces is
// reachable through UserState and is released on unload.
func TestWasmBackedInstanceState(t *testing.T) {
	reg := newRegistry()
	set := module.NewSet(reg)

	host, err := wasmhost.NewHost(emptyWasmModule)
	require.NoError(t, err)

	desc := fixture.NewDescriptor("guest", runtimeV1).
		Describe("wasm-backed module", "tester", "MIT").
		Build()
	desc.Modifiers.InstanceState = &module.InstanceStateModifier{
		Constructor: host.InstanceStateConstructor(),
		Destructor:  host.InstanceStateDestructor(),
	}

	require.NoError(t, set.AddModule(nil, desc))
	result := commitAndWait(t, set)
	assert.Equal(t, []string{"guest"}, result.Published)
	assert.Empty(t, result.Skipped)

	inst, err := reg.FindByName("guest")
	require.NoError(t, err)
	guest, ok := inst.UserState().(*wasmhost.GuestInstance)
	require.True(t, ok)
	assert.NotNil(t, guest.Instance)

	inst.Info().MarkUnloadable()
	require.NoError(t, reg.PruneInstances())
	assert.Equal(t, module.Dead, inst.Info().State())
}

func errorKindIs(err error, kind fimoerr.Kind) bool {
	k, ok := fimoerr.Of(err)
	return ok && k == kind
}
