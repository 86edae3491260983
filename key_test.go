package xcomm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type region string

func (r region) EventKey() string { return "region/" + string(r) }

func TestKeyOf_IsDeterministic(t *testing.T) {
	assert.Equal(t, KeyOf(987654321), KeyOf(987654321))
	assert.Equal(t, KeyOf("test_event"), KeyOf("test_event"))
	assert.Equal(t, KeyOf(eventOne), KeyOf(eventOne))
}

func TestKeyOf_CanonicalForms(t *testing.T) {
	assert.Equal(t, "string:orders", KeyOf("orders").Canonical)
	assert.Equal(t, "int:42", KeyOf(42).Canonical)
	assert.Equal(t, "int64:42", KeyOf(int64(42)).Canonical)
	assert.Equal(t, "xcomm.testEvent:testEvent(1)", KeyOf(eventOne).Canonical)
	assert.Equal(t, "key:region/eu", KeyOf(region("eu")).Canonical)
}

func TestKeyOf_TypesAreDistinct(t *testing.T) {
	assert.NotEqual(t, KeyOf(42).Hash, KeyOf("42").Hash)
	assert.NotEqual(t, KeyOf(42).Hash, KeyOf(int64(42)).Hash)
	assert.NotEqual(t, KeyOf(eventOne).Hash, KeyOf(eventTwo).Hash)
}

func TestKeyOf_Display(t *testing.T) {
	assert.Equal(t, "unknown", KeyOf("unknown").String())
	assert.Equal(t, "42", KeyOf(42).Display)
	assert.Equal(t, "testEvent(2)", KeyOf(eventTwo).Display)
}

func TestKeyOf_PassesKeysThrough(t *testing.T) {
	k := KeyOf("x")
	assert.Equal(t, k, KeyOf(k))
}
