package orchestrator

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/compose"
	nodex "github.com/tanpawarit/Chative-Realty-Call-Agent/agent/nodes"
)

// compileTurnGraph builds the per-turn transition function:
//
//	validate_request -> classify_intent | converse | finalize_reply
//	classify_intent  -> converse | finalize_reply
//	converse         -> finalize_reply -> END
func (o *Orchestrator) compileTurnGraph(
	ctx context.Context,
) (compose.Runnable[nodex.GraphInput, nodex.GraphOutput], error) {
	graph := compose.NewGraph[nodex.GraphInput, nodex.GraphOutput]()

	if err := graph.AddLambdaNode(nodex.NodeValidateRequest,
		compose.InvokableLambda(func(ctx context.Context, in nodex.GraphInput) (*nodex.GraphState, error) {
			return nodex.ValidateRequest(in, o.now)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node %s: %w", nodex.NodeValidateRequest, err)
	}

	if err := graph.AddLambdaNode(nodex.NodeClassifyIntent,
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.ClassifyIntent(ctx, in, o.models.Classifier())
		}),
	); err != nil {
		return nil, fmt.Errorf("add node %s: %w", nodex.NodeClassifyIntent, err)
	}

	if err := graph.AddLambdaNode(nodex.NodeConverse,
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.Converse(ctx, in, o.models)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node %s: %w", nodex.NodeConverse, err)
	}

	if err := graph.AddLambdaNode(nodex.NodeFinalizeReply,
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (nodex.GraphOutput, error) {
			return nodex.FinalizeReply(in)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node %s: %w", nodex.NodeFinalizeReply, err)
	}

	afterValidate := compose.NewGraphBranch(
		func(ctx context.Context, in *nodex.GraphState) (string, error) {
			return nodex.RouteAfterValidate(in)
		},
		map[string]bool{
			nodex.NodeClassifyIntent: true,
			nodex.NodeConverse:       true,
			nodex.NodeFinalizeReply:  true,
		},
	)
	if err := graph.AddBranch(nodex.NodeValidateRequest, afterValidate); err != nil {
		return nil, fmt.Errorf("add branch after %s: %w", nodex.NodeValidateRequest, err)
	}

	afterClassify := compose.NewGraphBranch(
		func(ctx context.Context, in *nodex.GraphState) (string, error) {
			return nodex.RouteAfterClassify(in)
		},
		map[string]bool{
			nodex.NodeConverse:      true,
			nodex.NodeFinalizeReply: true,
		},
	)
	if err := graph.AddBranch(nodex.NodeClassifyIntent, afterClassify); err != nil {
		return nil, fmt.Errorf("add branch after %s: %w", nodex.NodeClassifyIntent, err)
	}

	edges := [][2]string{
		{compose.START, nodex.NodeValidateRequest},
		{nodex.NodeConverse, nodex.NodeFinalizeReply},
		{nodex.NodeFinalizeReply, compose.END},
	}
	for _, edge := range edges {
		if err := graph.AddEdge(edge[0], edge[1]); err != nil {
			return nil, fmt.Errorf("add edge %s->%s: %w", edge[0], edge[1], err)
		}
	}

	runner, err := graph.Compile(ctx, compose.WithGraphName("orchestrator.handle_turn"))
	if err != nil {
		return nil, fmt.Errorf("compile orchestrator graph: %w", err)
	}
	return runner, nil
}
