package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"golang.org/x/crypto/bcrypt"

	"coursecontrol/internal/config"
	"coursecontrol/internal/model"
)

// Seeds a development database: a handful of accounts (password "password"
// for all of them), two published subjects with sections, and enrollments
// for every student in every subject.
func main() {
	cfg := config.Load()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		log.Fatalf("Failed to connect to MongoDB: %v", err)
	}
	defer client.Disconnect(ctx)

	db := client.Database(cfg.MongoDB)

	hash, err := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.DefaultCost)
	if err != nil {
		log.Fatalf("Failed to hash password: %v", err)
	}

	users := []model.User{
		{ID: "admin-1", Name: "Admin", Email: "admin@example.edu", Role: model.RoleAdmin},
		{ID: "faculty-1", Name: "Prof. Ada Stone", Email: "stone@example.edu", Role: model.RoleFaculty},
		{ID: "faculty-2", Name: "Prof. Ben Hill", Email: "hill@example.edu", Role: model.RoleFaculty},
		{ID: "student-1", Name: "Alice Park", Email: "alice@example.edu", Role: model.RoleStudent},
		{ID: "student-2", Name: "Bob Lee", Email: "bob@example.edu", Role: model.RoleStudent},
		{ID: "student-3", Name: "Carol Diaz", Email: "carol@example.edu", Role: model.RoleStudent},
	}
	for i := range users {
		users[i].PasswordHash = string(hash)
	}

	subjects := []model.Subject{
		{ID: 101, Code: "CS101", Name: "Data Structures", Type: "theory", Credits: 4, Published: true},
		{ID: 102, Code: "CS102", Name: "Data Structures Lab", Type: "lab", Credits: 1, Published: true},
	}

	sections := []model.Section{
		{ID: 1, SubjectID: 101, SectionNumber: "A", FacultyUserID: "faculty-1", MaxSeats: 30, TimeslotMask: 0b0000_0011, Published: true},
		{ID: 2, SubjectID: 101, SectionNumber: "B", FacultyUserID: "faculty-2", MaxSeats: 30, TimeslotMask: 0b0000_1100, Published: true},
		{ID: 3, SubjectID: 102, SectionNumber: "L1", FacultyUserID: "faculty-1", MaxSeats: 15, TimeslotMask: 0b0011_0000, Published: true},
		{ID: 4, SubjectID: 102, SectionNumber: "L2", FacultyUserID: "faculty-2", MaxSeats: 15, TimeslotMask: 0b1100_0000, Published: true},
	}

	var enrollments []interface{}
	for _, u := range users {
		if u.Role != model.RoleStudent {
			continue
		}
		for _, s := range subjects {
			enrollments = append(enrollments, model.Enrollment{
				StudentUserID: u.ID,
				SubjectID:     s.ID,
			})
		}
	}

	upsert := func(coll string, id interface{}, doc interface{}) {
		_, err := db.Collection(coll).ReplaceOne(ctx,
			bson.M{"_id": id}, doc, options.Replace().SetUpsert(true))
		if err != nil {
			log.Fatalf("Failed to seed %s: %v", coll, err)
		}
	}

	for _, u := range users {
		upsert("users", u.ID, u)
	}
	for _, s := range subjects {
		upsert("subjects", s.ID, s)
	}
	for _, s := range sections {
		upsert("sections", s.ID, s)
	}

	if len(enrollments) > 0 {
		if err := db.Collection("enrollments").Drop(ctx); err != nil {
			log.Fatalf("Failed to reset enrollments: %v", err)
		}
		if _, err := db.Collection("enrollments").InsertMany(ctx, enrollments); err != nil {
			log.Fatalf("Failed to seed enrollments: %v", err)
		}
	}

	fmt.Printf("Seeded %d users, %d subjects, %d sections, %d enrollments\n",
		len(users), len(subjects), len(sections), len(enrollments))
}
