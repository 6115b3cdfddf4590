package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainRepo "github.com/knowflow/backend/internal/domain/repository"
)

func shanghai(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Shanghai")
	require.NoError(t, err)
	return loc
}

func TestNextTrigger_Daily(t *testing.T) {
	loc := shanghai(t)

	// 00:01 之前：当天触发
	after := time.Date(2026, 3, 10, 0, 0, 30, 0, loc)
	next := nextTrigger(domainRepo.FrequencyDaily, after, loc)
	assert.Equal(t, time.Date(2026, 3, 10, 0, 1, 0, 0, loc), next)

	// 00:01 之后：次日触发
	after = time.Date(2026, 3, 10, 8, 0, 0, 0, loc)
	next = nextTrigger(domainRepo.FrequencyDaily, after, loc)
	assert.Equal(t, time.Date(2026, 3, 11, 0, 1, 0, 0, loc), next)
}

func TestNextTrigger_WeeklyIsMonday(t *testing.T) {
	loc := shanghai(t)

	// 2026-03-10 是周二，下一次触发是 2026-03-16 周一
	after := time.Date(2026, 3, 10, 12, 0, 0, 0, loc)
	next := nextTrigger(domainRepo.FrequencyWeekly, after, loc)
	assert.Equal(t, time.Date(2026, 3, 16, 0, 1, 0, 0, loc), next)
	assert.Equal(t, time.Monday, next.Weekday())

	// 周一 00:01 之前：当天触发
	after = time.Date(2026, 3, 16, 0, 0, 0, 0, loc)
	next = nextTrigger(domainRepo.FrequencyWeekly, after, loc)
	assert.Equal(t, time.Date(2026, 3, 16, 0, 1, 0, 0, loc), next)
}

func TestNextTrigger_MonthlyAndYearly(t *testing.T) {
	loc := shanghai(t)

	after := time.Date(2026, 3, 10, 12, 0, 0, 0, loc)
	next := nextTrigger(domainRepo.FrequencyMonthly, after, loc)
	assert.Equal(t, time.Date(2026, 4, 1, 0, 1, 0, 0, loc), next)

	next = nextTrigger(domainRepo.FrequencyYearly, after, loc)
	assert.Equal(t, time.Date(2027, 1, 1, 0, 1, 0, 0, loc), next)

	// 12 月翻年
	after = time.Date(2026, 12, 15, 12, 0, 0, 0, loc)
	next = nextTrigger(domainRepo.FrequencyMonthly, after, loc)
	assert.Equal(t, time.Date(2027, 1, 1, 0, 1, 0, 0, loc), next)
}

func TestIsDue(t *testing.T) {
	loc := shanghai(t)
	now := time.Date(2026, 3, 16, 0, 2, 0, 0, loc)

	// 未启用不触发
	assert.False(t, isDue(domainRepo.AutoUpdate{}, now, loc))

	// 从未执行过：到期
	assert.True(t, isDue(domainRepo.AutoUpdate{
		Enabled:   true,
		Frequency: domainRepo.FrequencyWeekly,
	}, now, loc))

	// 上次执行在上周：本周一 00:01 已过，到期
	lastWeek := time.Date(2026, 3, 9, 0, 1, 0, 0, loc)
	assert.True(t, isDue(domainRepo.AutoUpdate{
		Enabled:   true,
		Frequency: domainRepo.FrequencyWeekly,
		LastRun:   &lastWeek,
	}, now, loc))

	// 刚执行过：未到期
	justNow := time.Date(2026, 3, 16, 0, 1, 30, 0, loc)
	assert.False(t, isDue(domainRepo.AutoUpdate{
		Enabled:   true,
		Frequency: domainRepo.FrequencyWeekly,
		LastRun:   &justNow,
	}, now, loc))

	// 非法频率不触发
	assert.True(t, !isDue(domainRepo.AutoUpdate{
		Enabled:   true,
		Frequency: domainRepo.Frequency("hourly"),
	}, now, loc))
}
