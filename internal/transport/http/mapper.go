package http

import (
	"errors"

	"github.com/go-playground/validator/v10"

	"github.com/vovakirdan/wirechat-relay/internal/core"
	"github.com/vovakirdan/wirechat-relay/internal/proto"
	"github.com/vovakirdan/wirechat-relay/internal/store"
)

func inboundToCommand(inbound proto.Inbound) (core.Command, *core.CoreError) {
	cmd := core.Command{Ref: inbound.Ref}

	switch inbound.Type {
	case proto.InboundTypeSendMessage:
		var data proto.SendMessageData
		if err := proto.Decode(inbound.Data, &data); err != nil {
			return cmd, decodeError(err)
		}
		cmd.Kind = core.CommandSendMessage
		cmd.Room = data.Room
		cmd.To = data.To
		cmd.Text = data.Text
	case proto.InboundTypeTyping:
		var data proto.TypingData
		if err := proto.Decode(inbound.Data, &data); err != nil {
			return cmd, decodeError(err)
		}
		cmd.Kind = core.CommandTyping
		cmd.Room = data.Room
		cmd.To = data.To
		cmd.IsTyping = data.IsTyping
	case proto.InboundTypeMarkRead:
		var data proto.MarkReadData
		if err := proto.Decode(inbound.Data, &data); err != nil {
			return cmd, decodeError(err)
		}
		cmd.Kind = core.CommandMarkRead
		cmd.MessageID = data.MessageID
	case proto.InboundTypeAddReaction:
		var data proto.AddReactionData
		if err := proto.Decode(inbound.Data, &data); err != nil {
			return cmd, decodeError(err)
		}
		cmd.Kind = core.CommandAddReaction
		cmd.MessageID = data.MessageID
		cmd.Reaction = data.Reaction
	case proto.InboundTypeJoinRoom:
		var data proto.JoinRoomData
		if err := proto.Decode(inbound.Data, &data); err != nil {
			return cmd, decodeError(err)
		}
		cmd.Kind = core.CommandJoinRoom
		cmd.Room = data.Room
	case proto.InboundTypeHello:
		return cmd, core.NewValidationError("already authenticated")
	default:
		return cmd, core.NewValidationError("unknown message type")
	}
	return cmd, nil
}

func decodeError(err error) *core.CoreError {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		switch fe.Tag() {
		case "required":
			return core.NewValidationError(fe.Field() + " is required")
		case "max":
			return core.NewValidationError(fe.Field() + " is too long")
		default:
			return core.NewValidationError(fe.Field() + " is invalid")
		}
	}
	return core.NewValidationError("invalid payload")
}

func outboundFromEvent(event *core.Event) proto.Outbound {
	out := proto.Outbound{Type: proto.OutboundTypeEvent, Event: event.Kind.String(), Ref: event.Ref}

	switch event.Kind {
	case core.EventLoadMessages:
		messages := make([]proto.MessageView, 0, len(event.Messages))
		for _, msg := range event.Messages {
			messages = append(messages, messageView(msg))
		}
		out.Data = proto.LoadMessagesView{Room: event.Room, Messages: messages}
	case core.EventNewMessage, core.EventPrivateMessage, core.EventMessageUpdated:
		if event.Message != nil {
			out.Data = messageView(*event.Message)
		}
	case core.EventOnlineUsers:
		users := event.Online
		if users == nil {
			users = []string{}
		}
		out.Data = proto.OnlineUsersView{Users: users}
	case core.EventTyping:
		if sig := event.Typing; sig != nil {
			out.Data = proto.TypingView{
				From:     sig.From.UserID,
				FromName: sig.From.DisplayName,
				Room:     sig.Room,
				To:       sig.To,
				IsTyping: sig.IsTyping,
			}
		}
	case core.EventNotification:
		if n := event.Notification; n != nil {
			out.Data = proto.NotificationView{Type: n.Type, From: n.From, Room: event.Room, Text: n.Text}
		}
	case core.EventUserJoined, core.EventUserLeft:
		if event.User != nil {
			out.Data = proto.UserView{UserID: event.User.UserID, Username: event.User.DisplayName}
		}
	case core.EventJoinedRoom:
		out.Data = proto.RoomView{Room: event.Room}
	case core.EventAck:
		out.Type = proto.OutboundTypeAck
		out.Event = ""
		if ack := event.Ack; ack != nil {
			out.Ref = ack.Ref
			out.Data = proto.AckView{Status: ack.Status, ID: ack.ID}
			if ack.Error != nil {
				out.Error = &proto.Error{Code: ack.Error.Code, Msg: ack.Error.Message}
			}
		}
	case core.EventError:
		out.Type = proto.OutboundTypeError
		out.Event = ""
		if event.Error == nil {
			out.Error = &proto.Error{Code: core.ErrCodeInternal, Msg: "unknown error"}
		} else {
			out.Error = &proto.Error{Code: event.Error.Code, Msg: event.Error.Message}
		}
	}
	return out
}

func messageView(msg store.Message) proto.MessageView {
	readBy := msg.ReadBy
	if readBy == nil {
		readBy = []string{}
	}
	reactions := msg.Reactions
	if reactions == nil {
		reactions = map[string][]string{}
	}
	return proto.MessageView{
		ID:        msg.ID,
		Room:      msg.Room,
		From:      msg.FromUserID,
		FromName:  msg.FromDisplayName,
		To:        msg.ToUserID,
		Text:      msg.Text,
		Timestamp: msg.Timestamp,
		ReadBy:    readBy,
		Reactions: reactions,
	}
}
