package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c0deZ3R0/pixel-chunk/errors"
	"github.com/c0deZ3R0/pixel-chunk/grid"
)

func TestParseStrategy(t *testing.T) {
	s, err := ParseStrategy("ours")
	require.NoError(t, err)
	assert.Equal(t, StrategyOurs, s)

	s, err = ParseStrategy("theirs")
	require.NoError(t, err)
	assert.Equal(t, StrategyTheirs, s)

	_, err = ParseStrategy("mine")
	assert.True(t, errors.Is(errors.KindInvalid, err))
}

func TestCommitValidate(t *testing.T) {
	red := grid.MustParseColor("#ff0000ff")

	ok := Commit{Message: "paint", Changes: []grid.UpdateAction{{Index: 3, Color: red}}}
	assert.NoError(t, ok.Validate(4))

	empty := Commit{Message: "paint"}
	assert.True(t, errors.Is(errors.KindInvalid, empty.Validate(4)))

	noMessage := Commit{Message: "  ", Changes: ok.Changes}
	assert.True(t, errors.Is(errors.KindInvalid, noMessage.Validate(4)))

	outside := Commit{Message: "paint", Changes: []grid.UpdateAction{{Index: 4, Color: red}}}
	assert.True(t, errors.Is(errors.KindOutOfRange, outside.Validate(4)))
}

func TestRebaseCommitValidate(t *testing.T) {
	assert.NoError(t, RebaseCommit{Message: "m", Strategy: StrategyTheirs}.Validate(0))
	assert.True(t, errors.Is(errors.KindInvalid, RebaseCommit{Message: "m"}.Validate(0)))
	assert.True(t, errors.Is(errors.KindInvalid, RebaseCommit{Strategy: StrategyOurs}.Validate(0)))
}

func TestEncodeRequest(t *testing.T) {
	data, err := EncodeRequest(Commit{
		Message: "paint",
		Changes: []grid.UpdateAction{{Index: 1, Color: grid.MustParseColor("#00ff00ff")}},
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"commit","message":"paint","changes":[{"index":1,"color":"#00ff00ff"}]}`, string(data))

	data, err = EncodeRequest(RebaseCommit{Message: "retry", Strategy: StrategyOurs})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"rebase_commit","message":"retry","strategy":"ours"}`, string(data))
}

func TestDecodeRequest(t *testing.T) {
	req, err := DecodeRequest([]byte(`{"type":"rebase_commit","message":"retry","strategy":"theirs"}`))
	require.NoError(t, err)
	assert.Equal(t, RebaseCommit{Message: "retry", Strategy: StrategyTheirs}, req)

	req, err = DecodeRequest([]byte(`{"type":"commit","message":"m","changes":[{"index":0,"color":"#FFFFFFFF"}]}`))
	require.NoError(t, err)
	commit, ok := req.(Commit)
	require.True(t, ok)
	assert.Equal(t, grid.White, commit.Changes[0].Color)
}

func TestDecodeRequest_Invalid(t *testing.T) {
	cases := map[string]string{
		"not json":     `{`,
		"missing type": `{"message":"m","changes":[]}`,
		"unknown type": `{"type":"merge"}`,
		"bad color":    `{"type":"commit","message":"m","changes":[{"index":0,"color":"red"}]}`,
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeRequest([]byte(input))
			assert.True(t, errors.Is(errors.KindInvalid, err), "got %v", err)
		})
	}
}

func TestEncodeResult(t *testing.T) {
	data, err := EncodeResult(Success{LatestSnapshot: "s2"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"kind":"success","latest_snapshot":"s2"}`, string(data))

	data, err = EncodeResult(Conflict{SourceSnapshot: "s1", FailedAtSnapshot: "s2"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"kind":"conflict","source_snapshot":"s1","failed_at_snapshot":"s2","conflicted_chunks":[]}`, string(data))

	data, err = EncodeResult(Failure{Code: errors.KindInvalidState, Message: "busy"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"kind":"error","code":"invalid_state","message":"busy","fatal":false}`, string(data))
}

func TestDecodeResult(t *testing.T) {
	results := []Result{
		Ready{ProjectID: "p", BaseSnapshot: "s1", Rows: 2, Cols: 3},
		Success{LatestSnapshot: "s2"},
		Conflict{SourceSnapshot: "s1", FailedAtSnapshot: "s2", ConflictedChunks: []int{0, 4}},
		Failure{Code: errors.KindNoSuchProject, Message: "gone", Fatal: true},
	}
	for _, want := range results {
		t.Run(string(want.ResultKind()), func(t *testing.T) {
			data, err := EncodeResult(want)
			require.NoError(t, err)
			got, err := DecodeResult(data)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}

	_, err := DecodeResult([]byte(`{"latest_snapshot":"s2"}`))
	assert.True(t, errors.Is(errors.KindInvalid, err))
}

func TestFailure(t *testing.T) {
	f := FailureFrom(errors.E(errors.Op("x"), errors.KindOutOfRange, "index 9"), false)
	assert.Equal(t, errors.KindOutOfRange, f.Code)
	assert.True(t, errors.Is(errors.KindOutOfRange, f.Err()))

	f = FailureFrom(assert.AnError, true)
	assert.Equal(t, errors.KindInternal, f.Code)
	assert.True(t, f.Fatal)
}
