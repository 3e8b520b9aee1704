package circuit_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"simplane/internal/cache"
	"simplane/internal/circuit"
	"simplane/internal/mocks"

	. "github.com/smartystreets/goconvey/convey"
	"go.uber.org/mock/gomock"
)

type brokenCache struct{}

func (brokenCache) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, errors.New("connection refused")
}

func (brokenCache) Set(context.Context, string, []byte, time.Duration) error {
	return errors.New("connection refused")
}

func (brokenCache) Close() error { return nil }

func TestCachedStore(t *testing.T) {
	Convey("Given a cached circuit store", t, func() {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()
		ctx := context.Background()

		next := mocks.NewMockStore(ctrl)
		mem := cache.NewMemory()
		store := circuit.NewCached(next, mem, time.Hour, nil)

		Convey("cells are read from the store once", func() {
			table := &circuit.CellTable{
				Columns: []string{"gid", "x", "y", "z", "mtype"},
				Rows:    [][]any{{1.0, 0.0, 0.0, 0.0, "L5_TTPC"}},
			}
			next.EXPECT().Cells(gomock.Any(), "a.db").Return(table, nil).Times(1)

			first, err := store.Cells(ctx, "a.db")
			So(err, ShouldBeNil)
			So(first.Len(), ShouldEqual, 1)

			second, err := store.Cells(ctx, "a.db")
			So(err, ShouldBeNil)
			So(second.Columns, ShouldResemble, table.Columns)
			So(second.Rows, ShouldResemble, table.Rows)
		})

		Convey("cache keys include the circuit path", func() {
			next.EXPECT().Connectome(gomock.Any(), "a.db", 5).Return(&circuit.Connectome{Afferent: []int{1}}, nil)
			next.EXPECT().Connectome(gomock.Any(), "b.db", 5).Return(&circuit.Connectome{Afferent: []int{2}}, nil)

			a, err := store.Connectome(ctx, "a.db", 5)
			So(err, ShouldBeNil)
			b, err := store.Connectome(ctx, "b.db", 5)
			So(err, ShouldBeNil)
			So(a.Afferent, ShouldResemble, []int{1})
			So(b.Afferent, ShouldResemble, []int{2})

			again, err := store.Connectome(ctx, "a.db", 5)
			So(err, ShouldBeNil)
			So(again.Afferent, ShouldResemble, []int{1})
		})

		Convey("store errors are returned and not cached", func() {
			next.EXPECT().Cells(gomock.Any(), "gone.db").Return(nil, circuit.ErrCircuitNotFound).Times(2)

			_, err := store.Cells(ctx, "gone.db")
			So(errors.Is(err, circuit.ErrCircuitNotFound), ShouldBeTrue)
			_, err = store.Cells(ctx, "gone.db")
			So(err, ShouldNotBeNil)
			So(mem.Len(), ShouldEqual, 0)
		})

		Convey("morphology only fetches the cells not cached yet", func() {
			next.EXPECT().Morphology(gomock.Any(), "a.db", []int{1, 2}).Return(&circuit.Morphology{
				Cells: map[int]circuit.CellMorphology{
					1: {Sections: []circuit.Section{{ID: 0, Type: "soma"}}},
					2: {Sections: []circuit.Section{{ID: 0, Type: "soma"}}},
				},
			}, nil)
			next.EXPECT().Morphology(gomock.Any(), "a.db", []int{3}).Return(&circuit.Morphology{
				Cells: map[int]circuit.CellMorphology{
					3: {Sections: []circuit.Section{{ID: 0, Type: "soma"}, {ID: 1, Type: "axon"}}},
				},
			}, nil)

			_, err := store.Morphology(ctx, "a.db", []int{1, 2})
			So(err, ShouldBeNil)

			morph, err := store.Morphology(ctx, "a.db", []int{2, 3})
			So(err, ShouldBeNil)
			So(morph.Cells, ShouldHaveLength, 2)
			So(morph.Cells[3].Sections, ShouldHaveLength, 2)
			So(morph.Cells[2].Sections[0].Type, ShouldEqual, "soma")
		})

		Convey("astrocyte reads are cached per astrocyte", func() {
			next.EXPECT().AstrocyteMorphology(gomock.Any(), "a.db", 4).
				Return(&circuit.AstrocyteMorphology{Sections: []circuit.Section{{ID: 0, Type: "soma"}}}, nil).Times(1)
			next.EXPECT().AstrocyteProps(gomock.Any(), "a.db", 4).
				Return(circuit.AstrocyteProps{"mtype": "protoplasmic"}, nil).Times(1)
			next.EXPECT().EfferentNeurons(gomock.Any(), "a.db", 4).Return([]int{7, 9}, nil).Times(1)
			next.EXPECT().EfferentNeurons(gomock.Any(), "a.db", 5).Return([]int{1}, nil).Times(1)

			for i := 0; i < 2; i++ {
				morph, err := store.AstrocyteMorphology(ctx, "a.db", 4)
				So(err, ShouldBeNil)
				So(morph.Sections, ShouldHaveLength, 1)

				props, err := store.AstrocyteProps(ctx, "a.db", 4)
				So(err, ShouldBeNil)
				So(props["mtype"], ShouldEqual, "protoplasmic")

				gids, err := store.EfferentNeurons(ctx, "a.db", 4)
				So(err, ShouldBeNil)
				So(gids, ShouldResemble, []int{7, 9})
			}

			other, err := store.EfferentNeurons(ctx, "a.db", 5)
			So(err, ShouldBeNil)
			So(other, ShouldResemble, []int{1})
		})

		Convey("missing astrocytes are not cached", func() {
			next.EXPECT().AstrocyteMicrodomain(gomock.Any(), "a.db", 99).
				Return(nil, circuit.ErrAstrocyteNotFound).Times(2)

			for i := 0; i < 2; i++ {
				_, err := store.AstrocyteMicrodomain(ctx, "a.db", 99)
				So(errors.Is(err, circuit.ErrAstrocyteNotFound), ShouldBeTrue)
			}
		})

		Convey("astrocyte synapses bypass the cache", func() {
			syns := &circuit.AstrocyteSynapses{IDs: []int{1}}
			next.EXPECT().AstrocyteSynapses(gomock.Any(), "a.db", 4, 7).Return(syns, nil).Times(2)

			for i := 0; i < 2; i++ {
				got, err := store.AstrocyteSynapses(ctx, "a.db", 4, 7)
				So(err, ShouldBeNil)
				So(got.IDs, ShouldResemble, []int{1})
			}
		})

		Convey("syn connections bypass the cache", func() {
			syns := &circuit.SynConnections{Properties: circuit.SynapseProperties}
			next.EXPECT().SynConnections(gomock.Any(), "a.db", []int{1}).Return(syns, nil).Times(2)

			_, err := store.SynConnections(ctx, "a.db", []int{1})
			So(err, ShouldBeNil)
			_, err = store.SynConnections(ctx, "a.db", []int{1})
			So(err, ShouldBeNil)
		})
	})

	Convey("Given a failing cache backend", t, func() {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		next := mocks.NewMockStore(ctrl)
		store := circuit.NewCached(next, brokenCache{}, 0, nil)

		Convey("reads fall through to the store", func() {
			next.EXPECT().Connectome(gomock.Any(), "a.db", 1).Return(&circuit.Connectome{}, nil).Times(2)

			_, err := store.Connectome(context.Background(), "a.db", 1)
			So(err, ShouldBeNil)
			_, err = store.Connectome(context.Background(), "a.db", 1)
			So(err, ShouldBeNil)
		})
	})
}
