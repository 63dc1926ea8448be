// Copyright 2019-2021 VMware, Inc.
// SPDX-License-Identifier: BSD-2-Clause

package main

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/vmware/stompclient-go/client"
)

type printer struct {
	out         io.Writer
	headers     bool
	destination *color.Color
	key         *color.Color
}

func newPrinter(out io.Writer, headers bool) *printer {
	return &printer{
		out:         out,
		headers:     headers,
		destination: color.New(color.FgCyan, color.Bold),
		key:         color.New(color.FgYellow),
	}
}

func (p *printer) print(m *client.Message) {
	p.destination.Fprintf(p.out, "[%s]", m.Destination())
	fmt.Fprintf(p.out, " %s\n", m.Body)
	if !p.headers {
		return
	}
	for i := 0; i < m.Header.Len(); i++ {
		k, v := m.Header.GetAt(i)
		fmt.Fprintf(p.out, "  %s %s\n", p.key.Sprint(k+":"), v)
	}
}
