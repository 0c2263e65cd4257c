package pipeline

import (
	"context"
	"testing"

	"github.com/lorawan-fota/fragvec/pkg/bundle"
	"github.com/lorawan-fota/fragvec/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRemote_FetchLocalPassthrough(t *testing.T) {
	r := &Remote{WorkDir: t.TempDir()}
	job := Job{Mode: bundle.KindSignedDiff, Source: "v1.bin", Target: "v2.bin", Output: "out.h"}

	assert.False(t, r.NeedsClient(job))
	got, err := r.Fetch(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, job, got)
}

func TestRemote_FetchWithoutClient(t *testing.T) {
	r := &Remote{WorkDir: t.TempDir()}
	job := Job{Mode: bundle.KindNoDiff, Target: "s3://firmware/v2.bin", Output: "out.h"}

	assert.True(t, r.NeedsClient(job))
	_, err := r.Fetch(context.Background(), job)
	assert.ErrorIs(t, err, errors.ErrInput)
}

func TestRemote_Publish(t *testing.T) {
	r := &Remote{PublishPrefix: "vectors/"}
	uri, err := r.Publish(context.Background(), Job{Output: "/tmp/packets.h"})
	require.NoError(t, err)
	assert.Empty(t, uri, "publishing is disabled without a bucket")

	assert.Equal(t, "vectors/packets.h", r.PublishKey("/tmp/packets.h"))
	r.PublishPrefix = ""
	assert.Equal(t, "packets.h", r.PublishKey("out/packets.h"))

	r.PublishBucket = "artifacts"
	assert.True(t, r.NeedsClient(Job{}))
	_, err = r.Publish(context.Background(), Job{Output: "packets.h"})
	assert.Error(t, err)
}
