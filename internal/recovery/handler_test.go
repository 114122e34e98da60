package recovery

import (
	"errors"
	"fmt"
	"io/fs"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPrefer(t *testing.T) {
	h := Prefer(Duplicate, Overwrite)
	assert.Equal(t, Overwrite, h(fs.ErrExist, []Action{Overwrite, Skip}))
	assert.Equal(t, Duplicate, h(fs.ErrExist, []Action{Overwrite, Duplicate}))
	assert.Equal(t, Abort, h(fs.ErrExist, []Action{Skip}))
}

func TestStrategy_Conflicts(t *testing.T) {
	exist := fmt.Errorf("create: %w", fs.ErrExist)

	h := Strategy{OnConflict: Duplicate, OnError: Abort}.Handler()
	assert.Equal(t, WriteInto, h(exist, []Action{Overwrite, WriteInto, Skip}),
		"directories merge before conflict strategy applies")
	assert.Equal(t, Duplicate, h(exist, []Action{Overwrite, Duplicate, Skip}))

	h = Strategy{OnConflict: Skip}.Handler()
	assert.Equal(t, Skip, h(exist, []Action{Overwrite, Duplicate, Skip}))

	h = Strategy{OnConflict: Abort}.Handler()
	assert.Equal(t, Abort, h(exist, []Action{Overwrite, Duplicate, Skip}))
}

func TestStrategy_BoundedRetries(t *testing.T) {
	h := Strategy{OnError: Retry, Retries: 2}.Handler()
	err := errors.New("io")
	offered := []Action{Retry, Skip}

	assert.Equal(t, Retry, h(err, offered))
	assert.Equal(t, Retry, h(err, offered))
	assert.Equal(t, Skip, h(err, offered), "gives up after the retry budget")
	assert.Equal(t, Retry, h(err, offered), "budget resets for the next failure")
}

func TestStrategy_SkipErrors(t *testing.T) {
	h := Strategy{OnError: Skip}.Handler()
	assert.Equal(t, Skip, h(errors.New("io"), []Action{Retry, Skip}))
	assert.Equal(t, Abort, h(errors.New("io"), []Action{Retry}))
}

func TestStrategy_CrossDeviceCopies(t *testing.T) {
	h := Strategy{OnError: Skip}.Handler()
	exdev := fmt.Errorf("rename: %w", syscall.EXDEV)
	assert.Equal(t, CopyInstead, h(exdev, []Action{Retry, Skip, CopyInstead}))
	assert.Equal(t, Skip, h(exdev, []Action{Skip}))
}
