package game_test

import (
	"testing"
	"time"

	"hitduel/game"

	. "github.com/smartystreets/goconvey/convey"
)

func TestRouter(t *testing.T) {
	Convey("Given a router on B's process", t, func() {
		var changes []game.Display
		r := game.NewRouter(game.NewSelf("B"), time.Second,
			game.WithDisplayHook(func(d game.Display) { changes = append(changes, d) }))

		Convey("When A's result is shown", func() {
			shown := r.Show("A", game.TierPerfect)

			Convey("Then nothing becomes visible", func() {
				So(shown, ShouldBeFalse)
				_, visible := r.Current()
				So(visible, ShouldBeFalse)
				So(changes, ShouldBeEmpty)
			})
		})

		Convey("When B's result is shown", func() {
			So(r.Show("B", game.TierGreat), ShouldBeTrue)
			d, visible := r.Current()
			So(visible, ShouldBeTrue)
			So(d.Tier, ShouldEqual, game.TierGreat)
			So(d.Color, ShouldEqual, game.DefaultPalette().Color(game.TierGreat))

			Convey("Then it expires after the display duration", func() {
				r.Tick(900 * time.Millisecond)
				_, visible = r.Current()
				So(visible, ShouldBeTrue)
				r.Tick(100 * time.Millisecond)
				_, visible = r.Current()
				So(visible, ShouldBeFalse)
				So(changes, ShouldHaveLength, 2)
				So(changes[1].Visible, ShouldBeFalse)
			})

			Convey("Then a newer result replaces it and restarts the timer", func() {
				r.Tick(900 * time.Millisecond)
				r.Show("B", game.TierMiss)
				r.Tick(900 * time.Millisecond)
				d, visible = r.Current()
				So(visible, ShouldBeTrue)
				So(d.Tier, ShouldEqual, game.TierMiss)
				So(d.Color, ShouldEqual, "#FF0000")
			})
		})
	})

	Convey("Given a router whose local identity is not known yet", t, func() {
		self := game.NewSelf("")
		r := game.NewRouter(self, time.Second)
		So(r.Show("", game.TierPerfect), ShouldBeFalse)
		So(r.Show("A", game.TierPerfect), ShouldBeFalse)

		self.Set("A")
		So(r.Show("A", game.TierPerfect), ShouldBeTrue)
	})

	Convey("Given a tier outside the palette", t, func() {
		p := game.DefaultPalette()
		So(p.Color(game.Tier(9)), ShouldEqual, p.Default)

		r := game.NewRouter(game.NewSelf("A"), time.Second, game.WithPalette(p))
		r.Show("A", game.Tier(9))
		d, _ := r.Current()
		So(d.Color, ShouldEqual, "#FFFFFF")
	})
}
