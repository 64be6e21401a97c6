package server

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"hitduel/game"
	"hitduel/protocol"

	. "github.com/smartystreets/goconvey/convey"
)

func newTestServer() (*httptest.Server, *Manager, *Metrics) {
	s := DefaultSettings()
	s.TickInterval = 5 * time.Millisecond
	metrics := NewMetrics()
	m := NewManager(s, metrics, nil)
	if _, err := m.GetOrCreateRoom(DefaultRoomID); err != nil {
		panic(err)
	}
	return httptest.NewServer(NewHandler(m, metrics)), m, metrics
}

func dial(srv *httptest.Server, room string) *websocket.Conn {
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?room=" + room
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		panic(err)
	}
	return ws
}

// readUntil 读取直到遇到指定类型的消息
func readUntil(ws *websocket.Conn, typ string) protocol.Envelope {
	_ = ws.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			panic(err)
		}
		env, err := protocol.DecodeEnvelope(data)
		if err != nil {
			panic(err)
		}
		if env.T == typ {
			return env
		}
	}
}

func TestAdminEndpoints(t *testing.T) {
	Convey("Given a server with the default room", t, func() {
		srv, m, _ := newTestServer()
		defer func() {
			srv.Close()
			m.Close()
		}()

		Convey("When reading the room config", func() {
			resp, err := http.Get(srv.URL + "/admin/config?room=" + DefaultRoomID)
			So(err, ShouldBeNil)
			defer resp.Body.Close()

			Convey("Then the defaults are reported", func() {
				So(resp.StatusCode, ShouldEqual, http.StatusOK)
				var view SettingsView
				So(json.NewDecoder(resp.Body).Decode(&view), ShouldBeNil)
				So(view.SpawnIntervalMs, ShouldEqual, int64(1000))
				So(view.TargetLifetimeMs, ShouldEqual, int64(2000))
				So(view.PerfectThreshold, ShouldEqual, 0.05)
			})
		})

		Convey("When posting a threshold update", func() {
			resp, err := http.Post(srv.URL+"/admin/config", "application/json",
				strings.NewReader(`{"perfectThreshold":0.04,"greatThreshold":0.12}`))
			So(err, ShouldBeNil)
			defer resp.Body.Close()

			Convey("Then it is applied", func() {
				So(resp.StatusCode, ShouldEqual, http.StatusOK)
				room, _ := m.Room(DefaultRoomID)
				view, err := room.Settings(t.Context(), nil)
				So(err, ShouldBeNil)
				So(view.PerfectThreshold, ShouldEqual, 0.04)
				So(view.GreatThreshold, ShouldEqual, 0.12)
			})
		})

		Convey("When posting out-of-order thresholds", func() {
			resp, err := http.Post(srv.URL+"/admin/config", "application/json",
				strings.NewReader(`{"perfectThreshold":0.5}`))
			So(err, ShouldBeNil)
			defer resp.Body.Close()

			Convey("Then the update is rejected", func() {
				So(resp.StatusCode, ShouldEqual, http.StatusBadRequest)
			})
		})

		Convey("When asking for an unknown room", func() {
			resp, err := http.Get(srv.URL + "/admin/stats?room=nope")
			So(err, ShouldBeNil)
			defer resp.Body.Close()

			Convey("Then it is not found", func() {
				So(resp.StatusCode, ShouldEqual, http.StatusNotFound)
			})
		})

		Convey("When listing rooms and scraping metrics", func() {
			resp, err := http.Get(srv.URL + "/admin/rooms")
			So(err, ShouldBeNil)
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()

			mresp, err := http.Get(srv.URL + "/metrics")
			So(err, ShouldBeNil)
			mbody, _ := io.ReadAll(mresp.Body)
			mresp.Body.Close()

			Convey("Then both report the default room", func() {
				So(string(body), ShouldContainSubstring, DefaultRoomID)
				So(string(mbody), ShouldContainSubstring, "hitduel_rooms 1")
			})
		})
	})
}

func TestWebSocketSession(t *testing.T) {
	Convey("Given two players connected over websocket", t, func() {
		srv, m, metrics := newTestServer()
		defer func() {
			srv.Close()
			m.Close()
		}()

		a := dial(srv, DefaultRoomID)
		defer a.Close()
		wa, err := protocol.DecodePayload[protocol.Welcome](readUntil(a, protocol.MsgWelcome))
		So(err, ShouldBeNil)
		b := dial(srv, DefaultRoomID)
		defer b.Close()
		wb, err := protocol.DecodePayload[protocol.Welcome](readUntil(b, protocol.MsgWelcome))
		So(err, ShouldBeNil)

		So(wa.Host, ShouldBeTrue)
		So(wb.Host, ShouldBeFalse)
		So(wa.Player, ShouldNotEqual, wb.Player)

		Convey("When the second player submits a name", func() {
			msg := protocol.MustEncode(protocol.MsgSubmitIdentity, game.SubmitIdentity{Player: wb.Player, Name: "Bob"})
			So(b.WriteMessage(websocket.TextMessage, msg), ShouldBeNil)

			Convey("Then both players receive the same confirmation", func() {
				ca, err := protocol.DecodePayload[game.ConfirmIdentity](readUntil(a, protocol.MsgConfirmIdentity))
				So(err, ShouldBeNil)
				cb, err := protocol.DecodePayload[game.ConfirmIdentity](readUntil(b, protocol.MsgConfirmIdentity))
				So(err, ShouldBeNil)
				So(ca, ShouldResemble, cb)
				So(ca.Player, ShouldEqual, wb.Player)
				So(ca.Name, ShouldEqual, "Bob")
				So(testutil.ToFloat64(metrics.confirmations), ShouldEqual, 1.0)
			})
		})

		Convey("When targets start spawning", func() {
			spawned, err := protocol.DecodePayload[protocol.TargetSpawned](readUntil(a, protocol.MsgTargetSpawned))
			So(err, ShouldBeNil)

			Convey("Then the owner's hit resolves it for both players", func() {
				owner := a
				if spawned.Owner == wb.Player {
					owner = b
				}
				hit := protocol.MustEncode(protocol.MsgHit, protocol.Hit{Target: spawned.ID})
				So(owner.WriteMessage(websocket.TextMessage, hit), ShouldBeNil)

				for _, ws := range []*websocket.Conn{a, b} {
					var res protocol.TargetResolved
					for res.ID != spawned.ID {
						res, err = protocol.DecodePayload[protocol.TargetResolved](readUntil(ws, protocol.MsgTargetResolved))
						So(err, ShouldBeNil)
					}
					So(res.Owner, ShouldEqual, spawned.Owner)
					So(res.Timeout, ShouldBeFalse)
				}
			})
		})
	})
}
