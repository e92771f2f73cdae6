package rbac

// Default policy. Teachers own the authoring and grading surface,
// students only their own test-taking.
var RolePermissions = map[string][]string{
	"student": {
		"test:view",
		"attempt:create",
		"attempt:answer",
		"attempt:view-own",
		"user:change_password",
	},
	"teacher": {
		"test:view",
		"test:create",
		"test:assign",
		"question:create",
		"question:view",
		"attempt:view-all",
		"attempt:finish-any",
		"attempt:grade",
		"groups:view",
		"users:list",
		"users:bulk_upsert",
		"export:attempts",
	},
	"admin": {
		"*", // everything
	},
}
