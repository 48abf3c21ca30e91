// Package rpc exposes run ingestion over JSON-RPC for trace collectors.
package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"

	"github.com/xiaot623/gogo/replay/internal/domain"
	"github.com/xiaot623/gogo/replay/internal/service"
)

// Server exposes internal RPC endpoints for collectors and other internal clients.
type Server struct {
	listener  net.Listener
	rpcServer *rpc.Server
	done      chan struct{}
}

// NewServer creates a new RPC server bound to the replay service.
func NewServer(svc *service.Service) (*Server, error) {
	rpcServer := rpc.NewServer()
	handler := &Handler{service: svc}
	if err := rpcServer.RegisterName("Replay", handler); err != nil {
		return nil, fmt.Errorf("register rpc handler: %w", err)
	}

	return &Server{
		rpcServer: rpcServer,
		done:      make(chan struct{}),
	}, nil
}

// Start begins accepting RPC connections on the given address.
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.listener = ln

	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				close(s.done)
				return nil
			}
			log.Printf("RPC accept error: %v", err)
			continue
		}

		go s.ServeConn(conn)
	}
}

// ServeConn serves JSON-RPC on a single connection until it closes.
func (s *Server) ServeConn(conn net.Conn) {
	s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(conn))
}

// Shutdown stops accepting new RPC connections.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.listener == nil {
		return nil
	}

	if err := s.listener.Close(); err != nil {
		return err
	}

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Handler implements replay RPC methods.
type Handler struct {
	service *service.Service
}

// FeedbackArgs identifies a run and its new feedback.
type FeedbackArgs struct {
	RunID    string          `json:"run_id"`
	Feedback json.RawMessage `json:"feedback"`
}

// ListRunsArgs identifies a conversation.
type ListRunsArgs struct {
	ConversationID string `json:"conversation_id"`
}

// ListRunsResponse carries a conversation snapshot.
type ListRunsResponse struct {
	Runs []domain.RunRecord `json:"runs"`
}

// AckResponse is a generic OK response.
type AckResponse struct {
	OK bool `json:"ok"`
}

// IngestRun stores a run record.
func (h *Handler) IngestRun(req *domain.RunRecord, resp *AckResponse) error {
	if req == nil {
		return errors.New("run is required")
	}
	if err := h.service.IngestRun(context.Background(), req); err != nil {
		return err
	}
	if resp != nil {
		resp.OK = true
	}
	return nil
}

// UpdateFeedback replaces the feedback of a run.
func (h *Handler) UpdateFeedback(req *FeedbackArgs, resp *domain.FeedbackResponse) error {
	if req == nil {
		return errors.New("feedback request is required")
	}
	if req.RunID == "" {
		return errors.New("run_id is required")
	}

	patch, err := h.service.UpdateFeedback(context.Background(), req.RunID, req.Feedback)
	if err != nil {
		return err
	}
	if resp != nil {
		resp.RunID = patch.RunID
		resp.Feedback = patch.Feedback
	}
	return nil
}

// ListRuns returns the replayable runs of a conversation.
func (h *Handler) ListRuns(req *ListRunsArgs, resp *ListRunsResponse) error {
	if req == nil || req.ConversationID == "" {
		return errors.New("conversation_id is required")
	}

	runs, err := h.service.FetchRuns(context.Background(), req.ConversationID)
	if err != nil {
		return err
	}
	if resp != nil {
		resp.Runs = runs
	}
	return nil
}
