package slot

import "time"

// Timer 可取消的定时任务
type Timer interface {
	Stop() bool
}

// Scheduler 重试定时器来源，测试中替换为手动触发的实现
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

// Executor 执行拨号与读循环，ants.Pool 满足该接口
type Executor interface {
	Submit(task func()) error
}

type realScheduler struct{}

func (realScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

type goExecutor struct{}

func (goExecutor) Submit(task func()) error {
	go task()
	return nil
}
