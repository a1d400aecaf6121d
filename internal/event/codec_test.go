package event

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cleantree/internal/domain/models/tree"
)

func TestFrame_CarriesKindAndSeq(t *testing.T) {
	in := BranchReconcile{BranchID: tree.RootBranch, Items: []tree.Node{{ID: "1", IsFolder: true}, {ID: "2"}}}

	data, err := EncodeFrame(7, in)
	require.NoError(t, err)

	seq, out, err := DecodeFrame(data)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), seq)
	assert.Equal(t, in, out)
}

func TestDecode_JSONRootBranchIsNull(t *testing.T) {
	payload, err := json.Marshal(OpenStateChanged{BranchID: tree.RootBranch, ItemID: "1", IsOpen: true})
	require.NoError(t, err)
	assert.JSONEq(t, `{"branchId":null,"itemId":"1","isOpen":true}`, string(payload))

	e, err := Decode(KindOpenStateChanged, payload, json.Unmarshal)
	require.NoError(t, err)
	assert.Equal(t, OpenStateChanged{BranchID: tree.RootBranch, ItemID: "1", IsOpen: true}, e)
}

func TestDecode_UnknownKind(t *testing.T) {
	_, err := Decode("nope", []byte(`{}`), json.Unmarshal)
	assert.Error(t, err)
}
