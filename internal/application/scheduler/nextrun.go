package scheduler

import (
	"time"

	domainRepo "github.com/knowflow/backend/internal/domain/repository"
)

// 触发时刻为本地时区的 00:01，避开整点任务高峰
const (
	triggerHour   = 0
	triggerMinute = 1
)

// nextTrigger 计算某频率在 after 之后最近的一次触发时刻
// daily 每天、weekly 每周一、monthly 每月 1 日、yearly 每年 1 月 1 日
func nextTrigger(frequency domainRepo.Frequency, after time.Time, loc *time.Location) time.Time {
	after = after.In(loc)

	switch frequency {
	case domainRepo.FrequencyDaily:
		candidate := time.Date(after.Year(), after.Month(), after.Day(), triggerHour, triggerMinute, 0, 0, loc)
		if !candidate.After(after) {
			candidate = candidate.AddDate(0, 0, 1)
		}
		return candidate

	case domainRepo.FrequencyWeekly:
		candidate := time.Date(after.Year(), after.Month(), after.Day(), triggerHour, triggerMinute, 0, 0, loc)
		// 推进到周一
		for candidate.Weekday() != time.Monday || !candidate.After(after) {
			candidate = candidate.AddDate(0, 0, 1)
		}
		return candidate

	case domainRepo.FrequencyMonthly:
		candidate := time.Date(after.Year(), after.Month(), 1, triggerHour, triggerMinute, 0, 0, loc)
		if !candidate.After(after) {
			candidate = candidate.AddDate(0, 1, 0)
		}
		return candidate

	case domainRepo.FrequencyYearly:
		candidate := time.Date(after.Year(), time.January, 1, triggerHour, triggerMinute, 0, 0, loc)
		if !candidate.After(after) {
			candidate = candidate.AddDate(1, 0, 0)
		}
		return candidate
	}

	// 未知频率永不触发
	return after.AddDate(100, 0, 0)
}

// isDue 判断某知识库的自动更新是否到期
// 从未执行过的按到期处理
func isDue(auto domainRepo.AutoUpdate, now time.Time, loc *time.Location) bool {
	if !auto.Enabled || !auto.Frequency.Valid() {
		return false
	}
	if auto.LastRun == nil {
		return true
	}
	return !now.Before(nextTrigger(auto.Frequency, *auto.LastRun, loc))
}
