package domain

import (
	"encoding/json"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoleValid(t *testing.T) {
	assert.True(t, RoleCustomer.Valid())
	assert.True(t, RoleAgent.Valid())
	assert.False(t, Role("admin").Valid())
	assert.False(t, Role("").Valid())
}

func TestLessOrdersByTimestampThenID(t *testing.T) {
	msgs := []Message{
		{ID: 3, TS: 100},
		{ID: 1, TS: 150},
		{ID: 2, TS: 100},
	}
	sort.Slice(msgs, func(i, j int) bool { return Less(msgs[i], msgs[j]) })

	ids := []int64{msgs[0].ID, msgs[1].ID, msgs[2].ID}
	assert.Equal(t, []int64{2, 3, 1}, ids)
}

func TestMessageRecalled(t *testing.T) {
	assert.False(t, Message{}.Recalled())
	assert.True(t, Message{Type: TypeRecall}.Recalled())
}

func TestMessageEventOmitsOrigin(t *testing.T) {
	reply := int64(7)
	m := Message{
		ID: 9, Phone: "+111", Sender: RoleCustomer, Content: "hi", TS: 100,
		ReplyTo: &reply, IP: "10.0.0.1", Country: "Spain",
	}

	data, err := json.Marshal(NewMessageEvent(m))
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "+111", raw["phone"])
	assert.Equal(t, "customer", raw["sender"])
	assert.EqualValues(t, 7, raw["reply_to"])
	assert.NotContains(t, raw, "ip")
	assert.NotContains(t, raw, "country")
}

func TestRecalledEventContentOmittedWhenEmpty(t *testing.T) {
	data, err := json.Marshal(RecalledEvent{Phone: "+111", ID: 4, By: RoleAgent})
	require.NoError(t, err)
	assert.NotContains(t, string(data), "content")
}

func TestAgentTokenActive(t *testing.T) {
	assert.True(t, AgentToken{ID: 1}.Active())
	assert.False(t, AgentToken{ID: 1, RevokedAt: 5}.Active())
}
