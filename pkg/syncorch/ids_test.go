package syncorch

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMeetingID_StableAndScopedByBanana(t *testing.T) {
	id1 := MeetingID("springfield-il", "12345")
	id2 := MeetingID("springfield-il", "12345")
	assert.Equal(t, id1, id2)

	other := MeetingID("shelbyville-il", "12345")
	assert.NotEqual(t, id1, other)
	assert.Contains(t, id1, "springfield-il_")
}

func TestMatterID_PrefersMatterFileOverFallback(t *testing.T) {
	withFile := MatterID("springfield-il", "24-0091", "vendor-matter-9", "Adopt budget")
	sameFileDifferentFallback := MatterID("springfield-il", "24-0091", "something-else")
	assert.Equal(t, withFile, sameFileDifferentFallback)

	withoutFile := MatterID("springfield-il", "", "vendor-matter-9", "Adopt budget")
	assert.NotEqual(t, withFile, withoutFile)
}

func TestMatterID_FallbackDiffersByFallbackSeed(t *testing.T) {
	a := MatterID("springfield-il", "", "Adopt budget ordinance")
	b := MatterID("springfield-il", "", "Approve zoning variance")
	assert.NotEqual(t, a, b)
}
