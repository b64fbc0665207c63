package lrs

import (
	"context"
	"io"

	"github.com/roach88/lrsweek/internal/xapi"
)

// StatementPager walks the statements resource one page at a time by
// following "more" links. It is not restartable; start a new query with
// Client.Statements.
type StatementPager struct {
	client  *Client
	next    string
	started bool
	done    bool
	pages   int
}

// Next returns the statements of the next page, or io.EOF once the previous
// page carried no "more" link.
func (p *StatementPager) Next(ctx context.Context) ([]xapi.Statement, error) {
	if p.done {
		return nil, io.EOF
	}

	target := p.next
	if !p.started {
		target = p.client.resolve(statementsPath, nil)
		p.started = true
	}

	body, err := p.client.get(ctx, target)
	if err != nil {
		p.done = true
		return nil, err
	}
	page, err := xapi.DecodePage(body)
	if err != nil {
		p.done = true
		return nil, &TransportError{URL: target, Status: 200, Body: string(body), Err: err}
	}
	p.pages++

	p.client.logger.Debug("statements page", "page", p.pages, "statements", len(page.Statements))

	if page.More == "" {
		p.done = true
		return page.Statements, nil
	}
	p.next, err = p.client.continuation(page.More)
	if err != nil {
		p.done = true
		return nil, err
	}
	return page.Statements, nil
}

// Pages returns the number of pages fetched so far.
func (p *StatementPager) Pages() int {
	return p.pages
}

// Each calls fn for every page until the stream ends or fn fails.
func (p *StatementPager) Each(ctx context.Context, fn func([]xapi.Statement) error) error {
	for {
		stmts, err := p.Next(ctx)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if err := fn(stmts); err != nil {
			return err
		}
	}
}
