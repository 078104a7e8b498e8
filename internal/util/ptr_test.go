package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPtr(t *testing.T) {
	p := Ptr(int64(1500))
	assert.Equal(t, int64(1500), *p)
	assert.NotSame(t, p, Ptr(int64(1500)))
}

func TestDeref(t *testing.T) {
	assert.Equal(t, "boom", Deref(Ptr("boom"), ""))
	assert.Equal(t, "", Deref[string](nil, ""))
	assert.Equal(t, 7, Deref[int](nil, 7))
}
