package routing_test

import (
	"context"
	"fmt"
	"math"

	"github.com/gitrdm/gokanroute/internal/logger"
	"github.com/gitrdm/gokanroute/pkg/routing"
)

// A single vehicle leaves the depot at the origin, picks a parcel up at
// (5,5) and delivers it at (0,5).
func Example() {
	logger.Disable()
	points := [][2]float64{{0, 0}, {5, 5}, {0, 5}, {5, 0}}

	m, err := routing.NewWithDepot(len(points), 1, 0, routing.DefaultParameters())
	if err != nil {
		fmt.Println(err)
		return
	}
	_ = m.SetCost(func(from, to int64) int64 {
		a, b := points[from], points[to]
		return int64(math.Round(100 * math.Hypot(a[0]-b[0], a[1]-b[1])))
	})
	_ = m.AddPickupAndDelivery(1, 2)

	solution, err := m.Solve(context.Background())
	if err != nil {
		fmt.Println(err)
		return
	}
	routes, _ := m.AssignmentToRoutes(solution)
	fmt.Println("route:", routes[0])
	fmt.Println("cost:", solution.ObjectiveValue())
	// Output:
	// route: [3 1 2]
	// cost: 2000
}

func ExampleModel_ComputeLowerBound() {
	logger.Disable()
	m, _ := routing.NewWithDepot(3, 1, 0, routing.DefaultParameters())
	_ = m.SetCost(func(from, to int64) int64 {
		if from == to {
			return 0
		}
		return 10
	})
	m.CloseModel()
	fmt.Println(m.ComputeLowerBound())
	// Output: 20
}
