package errors_test

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	pkgerrors "zkns/pkg/errors"
)

func TestCodeOf(t *testing.T) {
	err := pkgerrors.New(pkgerrors.CodeNotOwner, "caller does not own name")
	assert.Equal(t, pkgerrors.CodeNotOwner, pkgerrors.CodeOf(err))

	wrapped := fmt.Errorf("handling request: %w", err)
	assert.Equal(t, pkgerrors.CodeNotOwner, pkgerrors.CodeOf(wrapped))

	assert.Equal(t, pkgerrors.CodeInternal, pkgerrors.CodeOf(stderrors.New("plain")))
}

func TestIsMatchesByCode(t *testing.T) {
	sentinel := pkgerrors.New(pkgerrors.CodeStaleCommitment, "stale commitment")
	err := pkgerrors.Wrap(stderrors.New("cas failed"), pkgerrors.CodeStaleCommitment, "submit proof")

	assert.True(t, stderrors.Is(err, sentinel))
	assert.False(t, stderrors.Is(err, pkgerrors.New(pkgerrors.CodeNotAdmin, "nope")))
}

func TestHasCode(t *testing.T) {
	err := pkgerrors.Newf(pkgerrors.CodeEncoding, "name %q too long", "x")
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeEncoding))
	assert.False(t, pkgerrors.HasCode(nil, pkgerrors.CodeEncoding))
}
