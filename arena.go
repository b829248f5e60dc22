// Package arena provides the session and ownership layer of a client-server
// multiplayer game.
//
// On the server a Manager owns an entity World and runs a fixed tick. Each
// tick it decides which connection owns which avatar and character, turns
// join requests into avatars, spawns characters on free spawn points and
// replicates the result. On the client an Orchestrator takes the player from
// the main menu into a session and back.
//
// # Quick Start
//
// Build and run a server:
//
//	mngr, err := arena.NewBuilder().
//	    Resources(res).
//	    SpawnPoints(points...).
//	    Replicator(srv).
//	    Build()
//	if err != nil {
//	    return err
//	}
//	mngr.Start()
//	defer mngr.Shutdown()
//
// The transport reports connections and join requests; they are applied on
// the next tick:
//
//	mngr.Connect(id)
//	mngr.ReceiveJoin(id, arena.JoinRequest{PlayerName: "alice"})
//	mngr.Disconnect(id)
//
// # Tick Order
//
// Systems run in three stages. The built-in systems run first in each stage:
//
//	Before:  ownership patch, connection events
//	Default: join requests, character spawns
//	After:   command buffer playback, replication
//
// Structural changes made by systems go through the CommandBuffer and become
// visible after playback. Entities created through the buffer get temporary
// handles; ownership entries that reference them are staged and merged into
// the OwnershipMap by the patch at the start of the next tick.
//
// # Systems
//
// Gameplay adds systems through bundles:
//
//	bund := arena.NewBundle("regen").
//	    Loop("regen", arena.RunnableFunc(regen), time.Second, arena.Default).
//	    Build()
//
//	mngr, err := arena.NewBuilder().Bundle(bund).Build()
//
// # Client
//
// The Orchestrator is built from a SessionService, a Worlds factory, a
// SceneLoader and the player settings:
//
//	orch, err := arena.NewOrchestrator(arena.OrchestratorConfig{...})
//	if err := orch.StartGame(ctx, arena.QuickJoin); err != nil {
//	    // back in the main menu
//	}
//	defer orch.ReturnToMainMenu(context.Background())
package arena
