package repository

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRevocationVoteMetadata_Encoding(t *testing.T) {
	mandateID, deliverableID := uuid.New(), uuid.New()

	raw, err := json.Marshal(revocationVoteMetadata{Source: "automation", MandateID: mandateID, DeliverableID: deliverableID})
	require.NoError(t, err)
	assert.JSONEq(t, `{"source":"automation","mandateId":"`+mandateID.String()+`","deliverableId":"`+deliverableID.String()+`"}`, string(raw))

	raw, err = json.Marshal(voteOptionMetadata{Key: "revoke"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"key":"revoke"}`, string(raw))
}
