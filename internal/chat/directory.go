package chat

import (
	"context"
	"log"
	"slices"
	"strings"

	"github.com/omochice/talkwave/pkg/protocol"
	"golang.org/x/sync/singleflight"
)

// RoomAPI is the request/response surface used for rooms and history.
type RoomAPI interface {
	ListRooms(ctx context.Context) ([]protocol.Room, error)
	ListPublicRooms(ctx context.Context) ([]protocol.Room, error)
	CreateRoom(ctx context.Context, room protocol.NewRoom) (protocol.Room, error)
	JoinRoom(ctx context.Context, roomID int64) error
	LoadMessages(ctx context.Context, roomID int64) ([]protocol.Message, error)
}

const (
	listMine   = "mine"
	listPublic = "public"
)

// RoomDirectory holds the user's rooms and the joinable public rooms.
// The two lists load independently; for each list only the response to
// the most recent request is applied.
type RoomDirectory struct {
	api     RoomAPI
	sched   Scheduler
	notices *Notices

	mine   []protocol.Room
	public []protocol.Room
	online map[string]bool

	issued map[string]uint64
	loaded map[string]uint64
	flight singleflight.Group
}

// NewRoomDirectory creates an empty directory.
func NewRoomDirectory(api RoomAPI, sched Scheduler, notices *Notices) *RoomDirectory {
	return &RoomDirectory{
		api:     api,
		sched:   sched,
		notices: notices,
		online:  make(map[string]bool),
		issued:  make(map[string]uint64),
		loaded:  make(map[string]uint64),
	}
}

// Mine returns the rooms the user belongs to, in server order.
func (d *RoomDirectory) Mine() []protocol.Room {
	return slices.Clone(d.mine)
}

// Public returns the joinable public rooms, in server order.
func (d *RoomDirectory) Public() []protocol.Room {
	return slices.Clone(d.public)
}

// Room looks up one of the user's rooms.
func (d *RoomDirectory) Room(id int64) (protocol.Room, bool) {
	i := slices.IndexFunc(d.mine, func(r protocol.Room) bool { return r.ID == id })
	if i < 0 {
		return protocol.Room{}, false
	}
	return d.mine[i], true
}

// Loads returns how many times each list has been replaced by a server
// response. Discarded and failed loads are not counted.
func (d *RoomDirectory) Loads() (mine, public uint64) {
	return d.loaded[listMine], d.loaded[listPublic]
}

// Online returns the usernames last reported online, sorted.
func (d *RoomDirectory) Online() []string {
	users := make([]string, 0, len(d.online))
	for u := range d.online {
		users = append(users, u)
	}
	slices.Sort(users)
	return users
}

// SetOnline applies a user_status_change event.
func (d *RoomDirectory) SetOnline(username string, online bool) {
	if online {
		d.online[username] = true
	} else {
		delete(d.online, username)
	}
}

// UpdatePreview records m as the latest message of its room.
func (d *RoomDirectory) UpdatePreview(m protocol.Message) bool {
	for i := range d.mine {
		if d.mine[i].ID == m.RoomID {
			latest := m
			d.mine[i].LatestMessage = &latest
			return true
		}
	}
	return false
}

// RefreshMine reloads "my rooms". Load failures are only logged.
func (d *RoomDirectory) RefreshMine() {
	d.refresh(listMine, d.api.ListRooms, func(rooms []protocol.Room) { d.mine = rooms })
}

// RefreshPublic reloads the public rooms. Load failures are only logged.
func (d *RoomDirectory) RefreshPublic() {
	d.refresh(listPublic, d.api.ListPublicRooms, func(rooms []protocol.Room) { d.public = rooms })
}

func (d *RoomDirectory) refresh(list string, load func(context.Context) ([]protocol.Room, error), apply func([]protocol.Room)) {
	d.issued[list]++
	seq := d.issued[list]

	d.sched.Go(func(ctx context.Context) func() {
		v, err, _ := d.flight.Do(list, func() (any, error) {
			return load(ctx)
		})
		return func() {
			if d.issued[list] != seq {
				return
			}
			if err != nil {
				log.Printf("[rooms] failed to load %s rooms: %v", list, err)
				return
			}
			rooms, _ := v.([]protocol.Room)
			apply(slices.Clone(rooms))
			d.loaded[list]++
		}
	})
}

// invalidate makes the next refresh of list hit the server even if one is
// already in flight, since that one may predate a mutation or a logout.
func (d *RoomDirectory) invalidate(list string) {
	d.flight.Forget(list)
}

// JoinPublicRoom joins roomID. On success both lists are reloaded; on
// failure the server message is surfaced and nothing changes.
func (d *RoomDirectory) JoinPublicRoom(roomID int64) {
	d.sched.Go(func(ctx context.Context) func() {
		err := d.api.JoinRoom(ctx, roomID)
		return func() {
			if err != nil {
				d.notices.Error(roomFailure(err))
				return
			}
			d.invalidate(listMine)
			d.invalidate(listPublic)
			d.RefreshMine()
			d.RefreshPublic()
		}
	})
}

// CreateRoom creates a room and reloads "my rooms" on success.
func (d *RoomDirectory) CreateRoom(room protocol.NewRoom) error {
	room.Name = strings.TrimSpace(room.Name)
	room.Description = strings.TrimSpace(room.Description)
	if room.Name == "" {
		err := &RoomError{Message: "Room name is required"}
		d.notices.Error(err)
		return err
	}

	d.sched.Go(func(ctx context.Context) func() {
		_, err := d.api.CreateRoom(ctx, room)
		return func() {
			if err != nil {
				d.notices.Error(roomFailure(err))
				return
			}
			d.invalidate(listMine)
			d.RefreshMine()
		}
	})
	return nil
}

// Reset drops both lists and invalidates in-flight loads. Loads issued
// afterwards never share a request made with the previous session.
func (d *RoomDirectory) Reset() {
	d.issued[listMine]++
	d.issued[listPublic]++
	d.invalidate(listMine)
	d.invalidate(listPublic)
	d.mine = nil
	d.public = nil
	clear(d.online)
}
