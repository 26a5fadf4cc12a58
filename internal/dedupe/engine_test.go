package dedupe

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketpipe-engine/internal/domain"
	"marketpipe-engine/internal/store"
)

type fakeListingStore struct {
	known   map[domain.ListingKey]int64
	failOn  map[domain.ListingKey]error
	touched []int64
}

func (f *fakeListingStore) FindListingID(ctx context.Context, key domain.ListingKey) (int64, error) {
	if err := f.failOn[key]; err != nil {
		return 0, err
	}
	if id, ok := f.known[key]; ok {
		return id, nil
	}
	return 0, &store.NotFoundError{Kind: "listing", Key: key.String()}
}

func (f *fakeListingStore) TouchLastSeen(ctx context.Context, ids []int64, t time.Time) error {
	f.touched = append(f.touched, ids...)
	return nil
}

func key(ext string) domain.ListingKey {
	return domain.ListingKey{Marketplace: "mockmarket", ExternalID: ext}
}

func cand(ext string) domain.Candidate {
	return domain.Candidate{Marketplace: "mockmarket", ExternalID: ext, Title: ext}
}

func TestDeduplicatePartitionsCandidates(t *testing.T) {
	fake := &fakeListingStore{known: map[domain.ListingKey]int64{
		key("a"): 11,
		key("b"): 22,
	}}
	eng := New(fake)

	res, err := eng.Deduplicate(context.Background(), []domain.Candidate{
		cand("a"), cand("b"), cand("c"),
	})
	require.NoError(t, err)

	require.Len(t, res.NewItems, 1)
	assert.Equal(t, "c", res.NewItems[0].ExternalID)
	assert.Equal(t, map[domain.ListingKey]int64{key("a"): 11, key("b"): 22}, res.ExistingIDs)
	assert.ElementsMatch(t, []int64{11, 22}, fake.touched)
}

func TestDeduplicateRepeatedKeyTouchedOnce(t *testing.T) {
	fake := &fakeListingStore{known: map[domain.ListingKey]int64{key("a"): 11}}
	eng := New(fake)

	res, err := eng.Deduplicate(context.Background(), []domain.Candidate{
		cand("a"), cand("a"), cand("a"),
	})
	require.NoError(t, err)
	assert.Empty(t, res.NewItems)
	assert.Equal(t, []int64{11}, fake.touched)
}

func TestDeduplicateLookupFailureTreatedAsNew(t *testing.T) {
	fake := &fakeListingStore{
		known:  map[domain.ListingKey]int64{key("a"): 11},
		failOn: map[domain.ListingKey]error{key("b"): errors.New("disk unhappy")},
	}
	eng := New(fake)

	res, err := eng.Deduplicate(context.Background(), []domain.Candidate{
		cand("a"), cand("b"),
	})
	require.NoError(t, err)

	// b is retried as new; the unique index downstream prevents a double
	// insert if it actually existed
	require.Len(t, res.NewItems, 1)
	assert.Equal(t, "b", res.NewItems[0].ExternalID)
	assert.Equal(t, []int64{11}, fake.touched)
}
