package input

import (
	"fmt"
	"math"

	"github.com/tsinghua-fib-lab/microsim/entity"
	"github.com/tsinghua-fib-lab/microsim/entity/junction"
	"github.com/tsinghua-fib-lab/microsim/schema"
)

// validator 收集路网与场景中的全部问题
type validator struct {
	err    entity.ScenarioLoadError
	lanes  map[int32]schema.Lane
	turns  map[int32]schema.Turn
	inters map[int32]schema.Intersection
	stops  map[int32]schema.Stop
}

// Validate 校验路网与场景
// 功能：在仿真开始前一次性报告全部输入问题，问题按输入顺序排列
// 返回：没有问题时返回nil，否则返回*entity.ScenarioLoadError
func Validate(network schema.Network, scenario schema.Scenario) error {
	v := &validator{
		lanes:  make(map[int32]schema.Lane),
		turns:  make(map[int32]schema.Turn),
		inters: make(map[int32]schema.Intersection),
		stops:  make(map[int32]schema.Stop),
	}
	v.checkLanes(network.Lanes)
	v.checkIntersections(network.Intersections)
	v.checkTurns(network.Turns)
	v.checkPhases(network.Intersections, network.Turns)
	v.checkStops(network.Stops)
	v.checkTrips(scenario.Trips)
	v.checkRoutes(scenario.TransitRoutes)
	return v.err.OrNil()
}

func finite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}

func (v *validator) checkLanes(lanes []schema.Lane) {
	for _, l := range lanes {
		if _, ok := v.lanes[l.ID]; ok {
			v.err.Addf("lane %d: duplicate id", l.ID)
			continue
		}
		v.lanes[l.ID] = l
		if l.Type != schema.LaneTypeDriving && l.Type != schema.LaneTypeWalking {
			v.err.Addf("lane %d: unknown type %q", l.ID, l.Type)
		}
		if !finite(l.Length) || l.Length <= 0 {
			v.err.Addf("lane %d: non-positive length %v", l.ID, l.Length)
		}
		if !finite(l.MaxSpeed) || l.MaxSpeed < 0 || (l.Type == schema.LaneTypeDriving && l.MaxSpeed == 0) {
			v.err.Addf("lane %d: invalid max speed %v", l.ID, l.MaxSpeed)
		}
		if l.Capacity < 0 {
			v.err.Addf("lane %d: negative capacity %d", l.ID, l.Capacity)
		}
	}
}

func (v *validator) checkIntersections(inters []schema.Intersection) {
	for _, j := range inters {
		if _, ok := v.inters[j.ID]; ok {
			v.err.Addf("intersection %d: duplicate id", j.ID)
			continue
		}
		v.inters[j.ID] = j
		switch j.Control {
		case schema.ControlUncontrolled, schema.ControlStopSign:
			if len(j.Phases) > 0 {
				v.err.Addf("intersection %d: phases on %s control", j.ID, j.Control)
			}
		case schema.ControlSignal:
			if len(j.Phases) == 0 {
				v.err.Addf("intersection %d: signal without phases", j.ID)
			}
		default:
			v.err.Addf("intersection %d: unknown control %q", j.ID, j.Control)
		}
	}
}

// roadLane 查找道路车道并检查类型
func (v *validator) roadLane(owner string, id int32, want schema.LaneType) (schema.Lane, bool) {
	l, ok := v.lanes[id]
	if !ok {
		v.err.Addf("%s: lane %d does not exist", owner, id)
		return l, false
	}
	if l.Type != want {
		v.err.Addf("%s: lane %d is %s, want %s", owner, id, l.Type, want)
		return l, false
	}
	return l, true
}

// position 检查位置在指定类型的道路车道上
func (v *validator) position(owner string, p schema.Position, want schema.LaneType) {
	l, ok := v.roadLane(owner, p.Lane, want)
	if ok && (!finite(p.S) || p.S < 0 || p.S > l.Length) {
		v.err.Addf("%s: s %v out of lane %d range [0, %v]", owner, p.S, p.Lane, l.Length)
	}
}

func (v *validator) checkTurns(turns []schema.Turn) {
	valid := make([]schema.Turn, 0, len(turns))
	for _, t := range turns {
		if _, ok := v.turns[t.ID]; ok {
			v.err.Addf("turn %d: duplicate id", t.ID)
			continue
		}
		if _, ok := v.lanes[t.ID]; ok {
			v.err.Addf("turn %d: id is already used by a lane", t.ID)
			continue
		}
		v.turns[t.ID] = t
		valid = append(valid, t)
	}
	for _, t := range valid {
		owner := fmt.Sprintf("turn %d", t.ID)
		want := schema.LaneTypeDriving
		switch t.Type {
		case schema.TurnStraight, schema.TurnLeft, schema.TurnRight, schema.TurnUTurn:
		case schema.TurnCrosswalk, schema.TurnSharedCorner:
			want = schema.LaneTypeWalking
		default:
			v.err.Addf("%s: unknown type %q", owner, t.Type)
		}
		if _, ok := v.inters[t.Intersection]; !ok {
			v.err.Addf("%s: intersection %d does not exist", owner, t.Intersection)
		}
		v.roadLane(owner, t.From, want)
		v.roadLane(owner, t.To, want)
		if !finite(t.Length) || t.Length <= 0 {
			v.err.Addf("%s: non-positive length %v", owner, t.Length)
		}
		if !finite(t.MaxSpeed) || t.MaxSpeed < 0 {
			v.err.Addf("%s: invalid max speed %v", owner, t.MaxSpeed)
		}
		for _, c := range t.Conflicts {
			other, ok := v.turns[c]
			switch {
			case !ok:
				v.err.Addf("%s: conflicting turn %d does not exist", owner, c)
			case c == t.ID:
				v.err.Addf("%s: conflicts with itself", owner)
			case other.Intersection != t.Intersection:
				v.err.Addf("%s: conflicting turn %d belongs to intersection %d", owner, c, other.Intersection)
			}
		}
	}
}

// checkPhases 检查信号相位：时长为正，转向属于本路口，同一相位的保护转向互不冲突
func (v *validator) checkPhases(inters []schema.Intersection, turns []schema.Turn) {
	conflicts := junction.BuildConflicts(turns)
	for _, j := range inters {
		if j.Control != schema.ControlSignal {
			continue
		}
		if !finite(j.Offset) {
			v.err.Addf("intersection %d: invalid offset %v", j.ID, j.Offset)
		}
		for i, p := range j.Phases {
			owner := fmt.Sprintf("intersection %d phase %d", j.ID, i)
			if !finite(p.Duration) || p.Duration <= 0 {
				v.err.Addf("%s: non-positive duration %v", owner, p.Duration)
			}
			seen := make(map[int32]bool)
			for _, id := range append(append([]int32(nil), p.Protected...), p.Yield...) {
				if seen[id] {
					v.err.Addf("%s: turn %d listed twice", owner, id)
					continue
				}
				seen[id] = true
				if t, ok := v.turns[id]; !ok || t.Intersection != j.ID {
					v.err.Addf("%s: turn %d does not belong to the intersection", owner, id)
				}
			}
			for x, a := range p.Protected {
				for _, b := range p.Protected[x+1:] {
					if conflicts[[2]int32{a, b}] {
						v.err.Addf("%s: protected turns %d and %d conflict", owner, a, b)
					}
				}
			}
		}
	}
}

func (v *validator) checkStops(stops []schema.Stop) {
	for _, s := range stops {
		owner := fmt.Sprintf("stop %d", s.ID)
		if _, ok := v.stops[s.ID]; ok {
			v.err.Addf("%s: duplicate id", owner)
			continue
		}
		v.stops[s.ID] = s
		v.position(owner, schema.Position{Lane: s.Lane, S: s.S}, schema.LaneTypeDriving)
		v.position(owner+" walk side", schema.Position{Lane: s.WalkLane, S: s.WalkS}, schema.LaneTypeWalking)
	}
}

func (v *validator) checkTrips(trips []schema.Trip) {
	seen := make(map[int32]bool, len(trips))
	for _, t := range trips {
		owner := fmt.Sprintf("trip %d", t.ID)
		if seen[t.ID] {
			v.err.Addf("%s: duplicate id", owner)
			continue
		}
		seen[t.ID] = true
		if t.ID < 0 || t.ID >= schema.TransitIDStart {
			v.err.Addf("%s: id out of range [0, %d)", owner, schema.TransitIDStart)
		}
		if !finite(t.Depart) || t.Depart < 0 {
			v.err.Addf("%s: invalid depart time %v", owner, t.Depart)
		}
		var want schema.LaneType
		switch t.Mode {
		case schema.ModeDrive:
			want = schema.LaneTypeDriving
		case schema.ModeWalk, schema.ModeTransit:
			want = schema.LaneTypeWalking
		default:
			v.err.Addf("%s: unknown mode %q", owner, t.Mode)
			continue
		}
		v.position(owner+" origin", t.Origin, want)
		v.position(owner+" destination", t.Destination, want)
	}
}

func (v *validator) checkRoutes(routes []schema.TransitRoute) {
	seen := make(map[int32]bool, len(routes))
	for _, r := range routes {
		owner := fmt.Sprintf("transit route %d", r.ID)
		if seen[r.ID] {
			v.err.Addf("%s: duplicate id", owner)
			continue
		}
		seen[r.ID] = true
		if len(r.Stops) < 2 {
			v.err.Addf("%s: needs at least 2 stops, got %d", owner, len(r.Stops))
		}
		for _, id := range r.Stops {
			if _, ok := v.stops[id]; !ok {
				v.err.Addf("%s: stop %d does not exist", owner, id)
			}
		}
		for _, d := range r.Departures {
			if !finite(d) || d < 0 {
				v.err.Addf("%s: invalid departure %v", owner, d)
			}
		}
		if r.Capacity < 0 {
			v.err.Addf("%s: negative capacity %d", owner, r.Capacity)
		}
	}
}
