package actor_test

import (
	"context"
	"fmt"
	"time"

	"github.com/lightningnetwork/lnd/fn/v2"

	"github.com/entityrt/entityrt/internal/baselib/actor"
)

// PingMsg asks a health-check actor to report its identity.
type PingMsg struct {
	actor.BaseMessage
	From string
}

// MessageType implements actor.Message.
func (m PingMsg) MessageType() string { return "PingMsg" }

// PongResponse is the reply to a PingMsg.
type PongResponse struct {
	Reply string
}

// ExampleActor spawns a single health-check actor, asks it for a response,
// then unregisters it from service discovery without stopping it.
func ExampleActor() {
	system := actor.NewActorSystem()
	defer system.Shutdown(context.Background())

	//nolint:ll
	healthCheckKey := actor.NewServiceKey[PingMsg, PongResponse](
		"health-check",
	)

	actorID := "health-check-0"
	healthCheckBehavior := actor.NewFunctionBehavior(
		func(ctx context.Context,
			msg PingMsg,
		) fn.Result[PongResponse] {
			return fn.Ok(PongResponse{
				Reply: "pong to " + msg.From + " from " +
					actorID,
			})
		},
	)

	// Spawn the actor. This registers it with the system and receptionist,
	// and starts it. It returns an ActorRef.
	healthCheckRef := healthCheckKey.Spawn(system, actorID, healthCheckBehavior)
	fmt.Printf("Actor %s spawned.\n", healthCheckRef.ID())

	// Send a message directly to the actor's reference.
	askCtx, askCancel := context.WithTimeout(
		context.Background(), 1*time.Second,
	)
	defer askCancel()
	futureResponse := healthCheckRef.Ask(
		askCtx, PingMsg{From: "operator"},
	)

	awaitCtx, awaitCancel := context.WithTimeout(
		context.Background(), 1*time.Second,
	)
	defer awaitCancel()
	result := futureResponse.Await(awaitCtx)

	result.WhenErr(func(err error) {
		fmt.Printf("Error awaiting response: %v\n", err)
	})
	result.WhenOk(func(response PongResponse) {
		fmt.Printf("Received: %s\n", response.Reply)
	})

	// Unregister the actor from the receptionist. This removes it from
	// service discovery but does NOT stop the actor. To stop the actor,
	// use StopAndRemoveActor or let Shutdown handle it.
	unregistered := healthCheckKey.Unregister(system, healthCheckRef)
	if unregistered {
		fmt.Printf("Actor %s unregistered from receptionist.\n",
			healthCheckRef.ID())
	} else {
		fmt.Printf("Failed to unregister actor %s.\n", healthCheckRef.ID())
	}

	// Verify it's no longer in the receptionist.
	refsAfterUnregister := actor.FindInReceptionist(
		system.Receptionist(), healthCheckKey,
	)
	fmt.Printf("Actors for key '%s' after unregister: %d\n",
		"health-check", len(refsAfterUnregister))

	// The deferred system.Shutdown() will stop all actors when this
	// function returns.

	// Output:
	// Actor health-check-0 spawned.
	// Received: pong to operator from health-check-0
	// Actor health-check-0 unregistered from receptionist.
	// Actors for key 'health-check' after unregister: 0
}
