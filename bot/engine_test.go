package bot_test

import (
	"encoding/binary"
	"errors"
	"io"
	"testing"

	"github.com/aligator/aums/bot"
	"github.com/aligator/aums/internal/msctest"
	"github.com/aligator/aums/usb"
	"github.com/golang/mock/gomock"
)

func inquiry() *bot.Command {
	return &bot.Command{
		DataTransferLength: 36,
		Direction:          bot.DirectionIn,
		CDB:                []byte{0x12, 0, 0, 0, 36, 0},
	}
}

// cswFor returns a DoAndReturn function answering the last sent CBW.
func cswFor(sent *[]byte, status bot.Status, tagDelta uint32) func(p []byte) (int, error) {
	return func(p []byte) (int, error) {
		tag := binary.LittleEndian.Uint32((*sent)[4:8])
		_ = bot.CSW{Tag: tag + tagDelta, Status: status}.MarshalTo(p)
		return bot.CSWSize, nil
	}
}

func recordCBW(sent *[]byte) func(p []byte) (int, error) {
	return func(p []byte) (int, error) {
		*sent = append([]byte(nil), p...)
		return len(p), nil
	}
}

func TestEngine_Transfer_mock(t *testing.T) {
	errBroken := errors.New("broken pipe")

	tests := []struct {
		name       string
		setup      func(m *usb.MockTransport, sent *[]byte)
		wantPassed bool
		wantErr    error
	}{
		{
			name: "passed with partial data transfers",
			setup: func(m *usb.MockTransport, sent *[]byte) {
				gomock.InOrder(
					m.EXPECT().BulkOut(gomock.Any()).DoAndReturn(recordCBW(sent)),
					m.EXPECT().BulkIn(gomock.Len(36)).Return(20, nil),
					m.EXPECT().BulkIn(gomock.Len(16)).Return(16, nil),
					m.EXPECT().BulkIn(gomock.Len(bot.CSWSize)).DoAndReturn(cswFor(sent, bot.StatusPassed, 0)),
				)
			},
			wantPassed: true,
		},
		{
			name: "failed status is a result, not an error",
			setup: func(m *usb.MockTransport, sent *[]byte) {
				gomock.InOrder(
					m.EXPECT().BulkOut(gomock.Any()).DoAndReturn(recordCBW(sent)),
					m.EXPECT().BulkIn(gomock.Len(36)).Return(36, nil),
					m.EXPECT().BulkIn(gomock.Any()).DoAndReturn(cswFor(sent, bot.StatusFailed, 0)),
				)
			},
			wantPassed: false,
		},
		{
			name: "tag mismatch desynchronizes",
			setup: func(m *usb.MockTransport, sent *[]byte) {
				gomock.InOrder(
					m.EXPECT().BulkOut(gomock.Any()).DoAndReturn(recordCBW(sent)),
					m.EXPECT().BulkIn(gomock.Len(36)).Return(36, nil),
					m.EXPECT().BulkIn(gomock.Any()).DoAndReturn(cswFor(sent, bot.StatusPassed, 1)),
				)
			},
			wantErr: bot.ErrProtocolDesync,
		},
		{
			name: "bad csw signature desynchronizes",
			setup: func(m *usb.MockTransport, sent *[]byte) {
				gomock.InOrder(
					m.EXPECT().BulkOut(gomock.Any()).DoAndReturn(recordCBW(sent)),
					m.EXPECT().BulkIn(gomock.Len(36)).Return(36, nil),
					m.EXPECT().BulkIn(gomock.Any()).DoAndReturn(func(p []byte) (int, error) {
						copy(p, "garbage garbage")
						return bot.CSWSize, nil
					}),
				)
			},
			wantErr: bot.ErrProtocolDesync,
		},
		{
			name: "zero byte data transfer fails",
			setup: func(m *usb.MockTransport, sent *[]byte) {
				gomock.InOrder(
					m.EXPECT().BulkOut(gomock.Any()).DoAndReturn(recordCBW(sent)),
					m.EXPECT().BulkIn(gomock.Len(36)).Return(0, nil),
				)
			},
			wantErr: io.ErrNoProgress,
		},
		{
			name: "transport error on cbw",
			setup: func(m *usb.MockTransport, sent *[]byte) {
				m.EXPECT().BulkOut(gomock.Any()).Return(0, errBroken)
			},
			wantErr: usb.ErrTransport,
		},
		{
			name: "transport error on csw",
			setup: func(m *usb.MockTransport, sent *[]byte) {
				gomock.InOrder(
					m.EXPECT().BulkOut(gomock.Any()).DoAndReturn(recordCBW(sent)),
					m.EXPECT().BulkIn(gomock.Len(36)).Return(36, nil),
					m.EXPECT().BulkIn(gomock.Any()).Return(0, errBroken),
				)
			},
			wantErr: errBroken,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			m := usb.NewMockTransport(ctrl)
			var sent []byte
			tt.setup(m, &sent)

			e := bot.NewEngine(m)
			res, err := e.Transfer(inquiry(), make([]byte, 36))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Transfer() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Transfer() unexpected error = %v", err)
			}
			if res.Passed() != tt.wantPassed {
				t.Errorf("Transfer() passed = %v, want %v", res.Passed(), tt.wantPassed)
			}
			if !tt.wantPassed && !errors.Is(res.Err(0x12), bot.ErrCommandFailed) {
				t.Errorf("Result.Err() = %v, want ErrCommandFailed", res.Err(0x12))
			}
		})
	}
}

func TestEngine_Transfer_bufferMismatch(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	e := bot.NewEngine(usb.NewMockTransport(ctrl))
	if _, err := e.Transfer(inquiry(), make([]byte, 35)); !errors.Is(err, bot.ErrDataBuffer) {
		t.Errorf("Transfer() error = %v, want ErrDataBuffer", err)
	}
}

func TestEngine_Transfer_freshTags(t *testing.T) {
	target := msctest.New(16, 512)
	e := bot.NewEngine(target)

	var tags []uint32
	for i := 0; i < 3; i++ {
		cmd := inquiry()
		res, err := e.Transfer(cmd, make([]byte, 36))
		if err != nil {
			t.Fatal(err)
		}
		if res.Tag != cmd.Tag {
			t.Errorf("result tag %d, command tag %d", res.Tag, cmd.Tag)
		}
		tags = append(tags, cmd.Tag)
	}
	if tags[0] == tags[1] || tags[1] == tags[2] {
		t.Errorf("tags are reused: %v", tags)
	}
}

func TestEngine_Transfer_target(t *testing.T) {
	target := msctest.New(16, 512)
	target.MaxPacket = 64
	for i := range target.Disk[512:1024] {
		target.Disk[512+i] = byte(i)
	}
	e := bot.NewEngine(target)

	read := &bot.Command{
		DataTransferLength: 512,
		Direction:          bot.DirectionIn,
		CDB:                []byte{0x28, 0, 0, 0, 0, 1, 0, 0, 1, 0},
	}
	data := make([]byte, 512)
	res, err := e.Transfer(read, data)
	if err != nil || !res.Passed() {
		t.Fatalf("Transfer() = %+v, %v", res, err)
	}
	for i, b := range data {
		if b != byte(i) {
			t.Fatalf("data[%d] = %d, want %d", i, b, byte(i))
		}
	}

	target.CorruptTag = true
	if _, err := e.Transfer(read, data); !errors.Is(err, bot.ErrProtocolDesync) {
		t.Errorf("Transfer() with corrupted tag error = %v", err)
	}

	target.CorruptSignature = true
	if _, err := e.Transfer(read, data); !errors.Is(err, bot.ErrProtocolDesync) {
		t.Errorf("Transfer() with corrupted signature error = %v", err)
	}

	_ = e.Close()
	if _, err := e.Transfer(read, data); !errors.Is(err, usb.ErrTransport) {
		t.Errorf("Transfer() after close error = %v", err)
	}
}
