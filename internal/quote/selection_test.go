package quote

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSelectionsObjectKeepsOrder(t *testing.T) {
	var s Selections
	require.NoError(t, json.Unmarshal([]byte(`{"lighting":"led-2","heater":["cilindro","stones"],"bench":""}`), &s))

	require.Equal(t, Selections{
		{StepID: "lighting", OptionIDs: []string{"led-2"}},
		{StepID: "heater", OptionIDs: []string{"cilindro", "stones"}},
		{StepID: "bench"},
	}, s)
	require.Equal(t, 3, s.Count())
}

func TestSelectionsArray(t *testing.T) {
	var s Selections
	require.NoError(t, json.Unmarshal([]byte(`[{"step_id":"heater","option_ids":["cilindro"]}]`), &s))
	require.Equal(t, Selections{{StepID: "heater", OptionIDs: []string{"cilindro"}}}, s)
}

func TestSelectionsRejectsBadValues(t *testing.T) {
	var s Selections
	require.Error(t, json.Unmarshal([]byte(`{"heater":42}`), &s))
	require.Error(t, json.Unmarshal([]byte(`"heater"`), &s))
}
