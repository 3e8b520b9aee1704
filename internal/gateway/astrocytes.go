package gateway

import (
	"context"
	"encoding/json"
	"maps"

	"simplane/internal/circuit"
	"simplane/pkg/api"
)

type astrocyteSomasReply struct {
	*circuit.AstrocyteSomas
	CmdID json.RawMessage `json:"cmdid,omitempty"`
}

func (c *conn) astrocytesSomas(req api.Request) {
	path, ok := withCircuit[struct{}](c, req, api.EventAstrocytesSomas, nil)
	if !ok {
		return
	}

	fetch(c, func(ctx context.Context) (*circuit.AstrocyteSomas, error) {
		return c.g.store.AstrocyteSomas(ctx, path)
	}, func(somas *circuit.AstrocyteSomas, err error) {
		if err != nil {
			c.storeError(api.EventAstrocytesSomas, req, err)
			return
		}
		c.send(api.EventAstrocytesSomas, astrocyteSomasReply{AstrocyteSomas: somas, CmdID: req.CmdID})
	})
}

func (c *conn) astrocyteProps(req api.Request) {
	var id int
	path, ok := withCircuit(c, req, api.EventAstrocyteProps, &id)
	if !ok {
		return
	}

	fetch(c, func(ctx context.Context) (circuit.AstrocyteProps, error) {
		return c.g.store.AstrocyteProps(ctx, path, id)
	}, func(props circuit.AstrocyteProps, err error) {
		if err != nil {
			c.storeError(api.EventAstrocyteProps, req, err)
			return
		}
		reply := make(map[string]any, len(props)+1)
		maps.Copy(reply, props)
		if len(req.CmdID) > 0 {
			reply["cmdid"] = req.CmdID
		}
		c.send(api.EventAstrocyteProps, reply)
	})
}

// efferentNeurons replies with a bare gid list.
func (c *conn) efferentNeurons(req api.Request) {
	var id int
	path, ok := withCircuit(c, req, api.EventEfferentNeurons, &id)
	if !ok {
		return
	}

	fetch(c, func(ctx context.Context) ([]int, error) {
		return c.g.store.EfferentNeurons(ctx, path, id)
	}, func(gids []int, err error) {
		if err != nil {
			c.storeError(api.EventEfferentNeurons, req, err)
			return
		}
		c.send(api.EventEfferentNeurons, gids)
	})
}

type astrocyteMorphReply struct {
	*circuit.AstrocyteMorphology
	CmdID json.RawMessage `json:"cmdid,omitempty"`
}

func (c *conn) astrocyteMorph(req api.Request) {
	var id int
	path, ok := withCircuit(c, req, api.EventAstrocyteMorph, &id)
	if !ok {
		return
	}

	fetch(c, func(ctx context.Context) (*circuit.AstrocyteMorphology, error) {
		return c.g.store.AstrocyteMorphology(ctx, path, id)
	}, func(morph *circuit.AstrocyteMorphology, err error) {
		if err != nil {
			c.storeError(api.EventAstrocyteMorph, req, err)
			return
		}
		c.send(api.EventAstrocyteMorph, astrocyteMorphReply{AstrocyteMorphology: morph, CmdID: req.CmdID})
	})
}

type microdomainReply struct {
	*circuit.Microdomain
	CmdID json.RawMessage `json:"cmdid,omitempty"`
}

func (c *conn) astrocyteMicrodomain(req api.Request) {
	var id int
	path, ok := withCircuit(c, req, api.EventAstrocyteMicrodomain, &id)
	if !ok {
		return
	}

	fetch(c, func(ctx context.Context) (*circuit.Microdomain, error) {
		return c.g.store.AstrocyteMicrodomain(ctx, path, id)
	}, func(md *circuit.Microdomain, err error) {
		if err != nil {
			c.storeError(api.EventAstrocyteMicrodomain, req, err)
			return
		}
		c.send(api.EventAstrocyteMicrodomain, microdomainReply{Microdomain: md, CmdID: req.CmdID})
	})
}

type astrocyteSynapsesReply struct {
	*circuit.AstrocyteSynapses
	CmdID json.RawMessage `json:"cmdid,omitempty"`
}

func (c *conn) astrocyteSynapses(req api.Request) {
	var data api.AstrocyteSynapsesRequest
	path, ok := withCircuit(c, req, api.EventAstrocyteSynapses, &data)
	if !ok {
		return
	}

	fetch(c, func(ctx context.Context) (*circuit.AstrocyteSynapses, error) {
		return c.g.store.AstrocyteSynapses(ctx, path, data.Astrocyte, data.Neuron)
	}, func(syns *circuit.AstrocyteSynapses, err error) {
		if err != nil {
			c.storeError(api.EventAstrocyteSynapses, req, err)
			return
		}
		c.send(api.EventAstrocyteSynapses, astrocyteSynapsesReply{AstrocyteSynapses: syns, CmdID: req.CmdID})
	})
}
