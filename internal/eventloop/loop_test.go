package eventloop

import (
	"context"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func startLoop(t *testing.T) (*Loop, context.CancelFunc) {
	t.Helper()
	loop := New(nil)
	ctx, cancel := context.WithCancel(context.Background())
	go loop.Run(ctx)
	return loop, func() {
		cancel()
		<-loop.Done()
	}
}

// syncLoop waits until every task submitted before it has run.
func syncLoop(loop *Loop) {
	done := make(chan struct{})
	if err := loop.Submit(func() { close(done) }); err != nil {
		return
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
	}
}

func TestLoop(t *testing.T) {
	Convey("Given a running loop", t, func() {
		loop, stop := startLoop(t)
		defer stop()

		Convey("tasks run in submission order", func() {
			var got []int
			for i := 0; i < 50; i++ {
				i := i
				So(loop.Submit(func() { got = append(got, i) }), ShouldBeNil)
			}
			syncLoop(loop)

			So(len(got), ShouldEqual, 50)
			for i, v := range got {
				So(v, ShouldEqual, i)
			}
		})

		Convey("a task submitted from a task runs after the current queue", func() {
			var got []string
			So(loop.Submit(func() {
				got = append(got, "a")
				loop.Submit(func() { got = append(got, "c") })
			}), ShouldBeNil)
			So(loop.Submit(func() { got = append(got, "b") }), ShouldBeNil)
			syncLoop(loop)
			syncLoop(loop)

			So(got, ShouldResemble, []string{"a", "b", "c"})
		})

		Convey("a panicking task does not stop the loop", func() {
			ran := false
			So(loop.Submit(func() { panic("boom") }), ShouldBeNil)
			So(loop.Submit(func() { ran = true }), ShouldBeNil)
			syncLoop(loop)

			So(ran, ShouldBeTrue)
		})

		Convey("tasks submitted concurrently all run", func() {
			var mu sync.Mutex
			count := 0
			var wg sync.WaitGroup
			for i := 0; i < 10; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					for j := 0; j < 100; j++ {
						loop.Submit(func() {
							mu.Lock()
							count++
							mu.Unlock()
						})
					}
				}()
			}
			wg.Wait()
			syncLoop(loop)

			mu.Lock()
			defer mu.Unlock()
			So(count, ShouldEqual, 1000)
		})

		Convey("Run cannot be started twice", func() {
			So(loop.Run(context.Background()), ShouldEqual, ErrRunning)
		})
	})
}

func TestLoop_Shutdown(t *testing.T) {
	Convey("Given a loop with queued tasks", t, func() {
		loop := New(nil)
		ran := 0
		for i := 0; i < 3; i++ {
			So(loop.Submit(func() { ran++ }), ShouldBeNil)
		}

		runErr := make(chan error, 1)
		go func() { runErr <- loop.Run(context.Background()) }()

		Convey("Shutdown drains the queue and rejects new tasks", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()

			So(loop.Shutdown(ctx), ShouldBeNil)
			So(<-runErr, ShouldBeNil)
			So(ran, ShouldEqual, 3)
			So(loop.Submit(func() {}), ShouldEqual, ErrClosed)

			Convey("and a second Shutdown is a no-op", func() {
				So(loop.Shutdown(ctx), ShouldBeNil)
			})
		})
	})

	Convey("Shutdown on a loop that never ran closes it", t, func() {
		loop := New(nil)
		So(loop.Shutdown(context.Background()), ShouldBeNil)
		So(loop.Submit(func() {}), ShouldEqual, ErrClosed)
	})
}
