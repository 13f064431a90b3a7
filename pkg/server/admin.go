package server

import (
	"context"
	"fmt"
)

// Rebuild replaces the word book with the words of the text at src, a file
// path or http(s) URL.
func (s *Server) Rebuild(ctx context.Context, src string) error {
	text, err := s.Spec.Loader.Load(ctx, src)
	if err != nil {
		return fmt.Errorf("rebuild from %s: %w", src, err)
	}
	if err := s.Spec.Store.Rebuild(ctx, text); err != nil {
		return err
	}
	s.logSize(ctx, "word book rebuilt", src)
	return nil
}

// MergeUpdate adds the word counts of the text at src to the word book.
func (s *Server) MergeUpdate(ctx context.Context, src string) error {
	text, err := s.Spec.Loader.Load(ctx, src)
	if err != nil {
		return fmt.Errorf("merge from %s: %w", src, err)
	}
	if err := s.Spec.Store.MergeUpdate(ctx, text); err != nil {
		return err
	}
	s.logSize(ctx, "word book updated", src)
	return nil
}

// Clear removes every word.
func (s *Server) Clear(ctx context.Context) error {
	if err := s.Spec.Store.Clear(ctx); err != nil {
		return err
	}
	s.Spec.Log.Info("word book cleared")
	return nil
}

func (s *Server) logSize(ctx context.Context, msg, src string) {
	n, err := s.Spec.Store.Len(ctx)
	if err != nil {
		s.Spec.Log.Warn(msg, "source", src, "error", err)
		return
	}
	s.Spec.Log.Info(msg, "source", src, "words", n)
}
