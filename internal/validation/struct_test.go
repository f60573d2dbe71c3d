package validation

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sampleRequest struct {
	Title string `json:"title" validate:"required,max=10"`
	Email string `json:"email" validate:"omitempty,email"`
	Topic string `json:"topic" validate:"required"`
}

func TestStruct_MissingFields(t *testing.T) {
	err := Struct(sampleRequest{})
	require.Error(t, err)
	assert.Equal(t, []string{"title", "topic"}, MissingFields(err))
	assert.Equal(t, "title is required", FirstMessage(err))
}

func TestStruct_Messages(t *testing.T) {
	err := Struct(sampleRequest{Title: "this title is too long", Topic: "x"})
	require.Error(t, err)
	assert.Empty(t, MissingFields(err))
	assert.Equal(t, "title must not exceed 10 characters", FirstMessage(err))

	err = Struct(sampleRequest{Title: "ok", Topic: "x", Email: "nope"})
	require.Error(t, err)
	assert.Equal(t, "invalid email format", FirstMessage(err))

	assert.NoError(t, Struct(sampleRequest{Title: "ok", Topic: "x"}))
}

func TestFirstMessage_NonValidationError(t *testing.T) {
	assert.Equal(t, "", FirstMessage(nil))
	assert.Equal(t, "boom", FirstMessage(errors.New("boom")))
	assert.Nil(t, MissingFields(errors.New("boom")))
}
