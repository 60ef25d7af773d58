package rank

import (
	"cmp"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"forecasting/internal/types"
)

func TestOrdered(t *testing.T) {
	tests := []struct {
		seq  []int
		want []int
	}{
		{[]int{1, 2, 3, 4, 5}, []int{1, 2, 3, 4, 5}},
		{[]int{1, 2, 2, 4, 5}, []int{1, 2, 2, 4, 5}},
		{[]int{4, 2, 2, 1, 7}, []int{4, 2, 2, 1, 5}},
		{[]int{4, 2, 2, 4, 7}, []int{3, 1, 1, 3, 5}},
		{nil, []int{}},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.seq), func(t *testing.T) {
			assert.Equal(t, tt.want, Ordered(tt.seq))
		})
	}
}

func TestDense(t *testing.T) {
	tests := []struct {
		seq  []int
		want []int
	}{
		{[]int{4, 2, 2, 4, 7}, []int{2, 1, 1, 2, 3}},
		{[]int{5, 5, 5}, []int{1, 1, 1}},
		{[]int{3, 1, 2}, []int{3, 1, 2}},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.seq), func(t *testing.T) {
			assert.Equal(t, tt.want, Dense(tt.seq, cmp.Compare[int]))
		})
	}
}

func TestDenseDescendingRatings(t *testing.T) {
	ratings := []types.Rating{
		{ShinyHours: 5, TempAvg: 20},
		{ShinyHours: 3, TempAvg: 30},
		{ShinyHours: 5, TempAvg: 20},
		{ShinyHours: 5, TempAvg: 21},
	}

	got := Dense(ratings, Descending(types.Rating.Compare))

	assert.Equal(t, []int{2, 3, 2, 1}, got)
}

func TestRankProperties(t *testing.T) {
	seq := []int{9, 3, 3, 12, 0, 9, 7}
	desc := Descending(cmp.Compare[int])

	for _, ranks := range [][]int{Competition(seq, desc), Dense(seq, desc)} {
		for i := range seq {
			for j := range seq {
				assert.Equal(t, seq[i] == seq[j], ranks[i] == ranks[j], "equal values share ranks")
				if seq[i] > seq[j] {
					assert.Less(t, ranks[i], ranks[j], "greater value ranks first")
				}
			}
		}
	}
}

func TestRankDoesNotModifyInput(t *testing.T) {
	seq := []int{3, 1, 2}
	_ = Ordered(seq)
	_ = Dense(seq, cmp.Compare[int])
	assert.Equal(t, []int{3, 1, 2}, seq)
}
