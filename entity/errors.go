package entity

import (
	"errors"
	"fmt"
	"strings"

	"github.com/kr/pretty"
)

var (
	// 车道容量不足或与相邻车辆间距不足，下一步重试
	ErrLaneFull = errors.New("lane full")
	// 路口拒绝转向申请，下一步重试
	ErrTurnDenied = errors.New("turn denied")
	// 起终点在指定出行方式下不连通
	ErrNoPathFound = errors.New("no path found")
)

// ViolationError 不变量被破坏
// 说明：表示程序逻辑缺陷而非运行时状况，发生后仿真中止
type ViolationError struct {
	Step         int32
	Agent        int32
	Lane         int32
	Intersection int32
	Reason       string
	Record       any // 出错时相关对象的状态
}

// NewViolation 创建不变量错误，未涉及的对象ID填NoID
func NewViolation(step, agent, lane, intersection int32, format string, args ...any) *ViolationError {
	return &ViolationError{
		Step:         step,
		Agent:        agent,
		Lane:         lane,
		Intersection: intersection,
		Reason:       fmt.Sprintf(format, args...),
	}
}

// WithRecord 附加诊断用的状态数据
func (e *ViolationError) WithRecord(record any) *ViolationError {
	e.Record = record
	return e
}

func (e *ViolationError) Error() string {
	return fmt.Sprintf(
		"invariant violation at step %d (agent=%d, lane=%d, intersection=%d): %s",
		e.Step, e.Agent, e.Lane, e.Intersection, e.Reason,
	)
}

// Detail 完整的诊断信息
func (e *ViolationError) Detail() string {
	if e.Record == nil {
		return e.Error()
	}
	return e.Error() + "\n" + pretty.Sprint(e.Record)
}

// ScenarioLoadError 路网或场景输入不合法，在开始推进前报告全部问题
type ScenarioLoadError struct {
	Problems []string
}

func (e *ScenarioLoadError) Error() string {
	return fmt.Sprintf("invalid scenario (%d problems): %s", len(e.Problems), strings.Join(e.Problems, "; "))
}

// Addf 追加一个问题
func (e *ScenarioLoadError) Addf(format string, args ...any) {
	e.Problems = append(e.Problems, fmt.Sprintf(format, args...))
}

// OrNil 没有问题时返回nil
func (e *ScenarioLoadError) OrNil() error {
	if len(e.Problems) == 0 {
		return nil
	}
	return e
}
